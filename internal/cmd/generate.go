package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/3leaps/objmanifest/internal/config"
	"github.com/3leaps/objmanifest/internal/observability"
	"github.com/3leaps/objmanifest/pkg/fanout"
	"github.com/3leaps/objmanifest/pkg/listing"
	"github.com/3leaps/objmanifest/pkg/manifest"
	"github.com/3leaps/objmanifest/pkg/output"
	"github.com/3leaps/objmanifest/pkg/partition"
	"github.com/3leaps/objmanifest/pkg/provider"
	"github.com/3leaps/objmanifest/pkg/provider/file"
	"github.com/3leaps/objmanifest/pkg/provider/minio"
	"github.com/3leaps/objmanifest/pkg/provider/s3"
	"github.com/3leaps/objmanifest/pkg/syncclient"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "List every partition of a bucket and write manifests",
	Long: `List every fixed-width prefix of a bucket concurrently and write one
manifest per non-empty prefix to a directory named after the bucket.

Failed prefixes are logged and counted; the run still completes. Use
--failed-out to save them and --partitions-file to retry only those.

Example:
  objmanifest generate --bucket my-bucket
  objmanifest generate --bucket my-bucket --region eu-west-1 --concurrency 64
  objmanifest generate --bucket my-bucket --endpoint-url http://localhost:9000 --provider minio
  objmanifest generate --bucket my-bucket --partitions '00*' --failed-out failed.yaml
  objmanifest generate --bucket my-bucket --partitions-file failed.yaml --sync
  objmanifest generate --bucket my-bucket --provider file --endpoint-url /srv/buckets
  objmanifest generate --bucket my-bucket --dry-run`,
	RunE: runGenerate,
}

var generateDryRun bool

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.StringP("bucket", "b", "", "Bucket to enumerate (required)")
	f.String("provider", "s3", "Storage client (s3|minio|file)")
	f.String("region", "", "Bucket region")
	f.String("endpoint-url", "", "Custom endpoint for S3-compatible stores, or the root directory for file")
	f.String("profile", "", "Shared credentials profile")
	f.Bool("force-path-style", false, "Use path-style bucket addressing")
	f.StringP("output-dir", "o", "", "Manifest directory (default: ./<bucket>)")
	f.IntP("concurrency", "c", fanout.DefaultConcurrency, "Maximum partitions listed at once")
	f.Duration("attempt-timeout", s3.DefaultAttemptTimeout, "Timeout for each network attempt")
	f.Int("max-attempts", 0, "SDK attempts per request (0 = SDK default)")
	f.Float64("rate-limit", 0, "Maximum list requests per second (0 = unlimited)")
	f.Int("max-keys", 0, "Page size for list requests (0 = store default)")
	f.String("delimiter", listing.DefaultDelimiter, "Listing delimiter")
	f.String("failed-out", "", "Write failed partitions to this partition list file")
	f.String("events", "", "Write JSONL events to a file, or - for stdout")
	f.Bool("sync", false, "List partitions one at a time through the blocking client")
	f.Int("progress-every", 1000, "Log progress every N finished partitions (0 = off)")
	addPartitionFlags(f)
	f.BoolVar(&generateDryRun, "dry-run", false, "Show the plan without listing")
}

// addPartitionFlags registers the flags that select the partition set.
func addPartitionFlags(f *pflag.FlagSet) {
	f.String("partition-alphabet", partition.HexAlphabet, "Partition symbol alphabet")
	f.Int("partition-width", 4, "Partition width in symbols")
	f.StringSliceP("partitions", "p", nil, "Only partitions matching these glob patterns")
	f.String("partitions-file", "", "Only partitions listed in this partition list file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		observability.CLILogger.Error("Invalid configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	parts, err := resolvePartitions(cfg)
	if err != nil {
		observability.CLILogger.Error("Invalid partition selection", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid partition selection", err)
	}

	if generateDryRun {
		return showGeneratePlan(cmd.OutOrStdout(), cfg, parts)
	}
	return executeGenerate(ctx, cfg, parts)
}

// resolvePartitions generates the scheme, then applies the partition list
// file and the glob filters.
func resolvePartitions(cfg *config.Config) ([]string, error) {
	parts, err := partition.Generate(cfg.Scheme())
	if err != nil {
		return nil, err
	}

	if cfg.PartitionsFile != "" {
		allowed, err := partition.LoadList(cfg.PartitionsFile)
		if err != nil {
			return nil, err
		}
		parts = partition.Restrict(parts, allowed)
		if dropped := len(allowed) - len(parts); dropped > 0 {
			observability.CLILogger.Warn("Ignoring listed partitions outside the scheme",
				zap.String("path", cfg.PartitionsFile),
				zap.Int("ignored", dropped))
		}
	}

	return partition.Filter(parts, cfg.Partitions)
}

// bucketSource is what a run needs from a provider.
type bucketSource interface {
	provider.DelimiterLister
	provider.BucketChecker
}

// newSource builds the configured provider. Tests replace it.
var newSource = func(ctx context.Context, cfg *config.Config) (bucketSource, error) {
	switch cfg.ProviderType() {
	case provider.ProviderFile:
		p, err := file.New(file.Config{Root: cfg.EndpointURL, Bucket: cfg.Bucket, MaxKeys: cfg.MaxKeys})
		if err != nil {
			return nil, err
		}
		return p, nil
	case provider.ProviderMinIO:
		p, err := minio.New(minio.Config{
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.EndpointURL,
			Region:          cfg.Region,
			Profile:         cfg.Profile,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			ForcePathStyle:  cfg.ForcePathStyle,
			MaxKeys:         cfg.MaxKeys,
			AttemptTimeout:  cfg.AttemptTimeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.EndpointURL,
			Profile:         cfg.Profile,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			ForcePathStyle:  cfg.ForcePathStyle,
			MaxKeys:         cfg.MaxKeys,
			AttemptTimeout:  cfg.AttemptTimeout,
			MaxAttempts:     cfg.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// showGeneratePlan displays what would be listed without listing.
func showGeneratePlan(w io.Writer, cfg *config.Config, parts []string) error {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	p("=== Manifest Plan (dry-run) ===\n\n")
	p("Provider:    %s\n", cfg.ProviderType())
	p("Bucket:      %s\n", cfg.Bucket)
	if cfg.Region != "" {
		p("Region:      %s\n", cfg.Region)
	}
	if cfg.EndpointURL != "" {
		p("Endpoint:    %s\n", cfg.EndpointURL)
	}
	p("Output:      %s\n", cfg.OutputRoot())
	p("\n")
	p("Partitions:  %d of %d\n", len(parts), cfg.Scheme().Count())
	if len(cfg.Partitions) > 0 {
		p("  Filters:   %s\n", strings.Join(cfg.Partitions, ", "))
	}
	if cfg.PartitionsFile != "" {
		p("  From file: %s\n", cfg.PartitionsFile)
	}
	if len(parts) > 0 {
		p("  Range:     %s .. %s\n", parts[0], parts[len(parts)-1])
	}
	p("\n")
	if cfg.Sync {
		p("Mode:        sequential (--sync)\n")
	} else {
		p("Concurrency: %d\n", cfg.Concurrency)
	}
	p("Timeout:     %s per attempt\n", cfg.AttemptTimeout)
	if cfg.RateLimit > 0 {
		p("Rate limit:  %g requests/s\n", cfg.RateLimit)
	}
	return nil
}

// executeGenerate performs the run. It returns an error only for setup
// failures and cancellation; failed partitions are reported, not returned.
func executeGenerate(ctx context.Context, cfg *config.Config, parts []string) error {
	src, err := newSource(ctx, cfg)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	if err := src.CheckBucket(ctx, cfg.Bucket); err != nil {
		observability.CLILogger.Error("Bucket check failed",
			zap.String("bucket", cfg.Bucket),
			zap.String("code", provider.ErrorCode(err)),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Bucket check failed", err)
	}

	writer := manifest.NewOSWriter(cfg.OutputRoot())
	if err := writer.Prepare(); err != nil {
		observability.CLILogger.Error("Cannot create output directory", zap.String("path", cfg.OutputRoot()), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Cannot create output directory", err)
	}

	runID := uuid.New().String()
	events, closeEvents, err := output.Open(cfg.Events, runID, cfg.ProviderType().String())
	if err != nil {
		observability.CLILogger.Error("Cannot open events output", zap.String("path", cfg.Events), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Cannot open events output", err)
	}
	defer func() { _ = closeEvents() }()

	logger := observability.CLILogger.With(zap.String("run_id", runID))
	logger.Info("Starting manifest generation",
		zap.String("bucket", cfg.Bucket),
		zap.String("provider", cfg.ProviderType().String()),
		zap.Int("partitions", len(parts)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Bool("sync", cfg.Sync),
		zap.String("output", writer.Root()))

	root := writer.Root()
	eventObs := fanout.NewEventObserver(events, len(parts), cfg.ProgressEvery, func(p string) string {
		return filepath.Join(root, manifest.Path(p))
	})
	eventObs.Start()
	obs := fanout.MultiObserver{
		fanout.NewLogObserver(logger, len(parts), cfg.ProgressEvery),
		eventObs,
	}

	client := listing.New(src, listing.Config{
		Bucket:    cfg.Bucket,
		Delimiter: cfg.Delimiter,
		MaxKeys:   cfg.MaxKeys,
		RateLimit: cfg.RateLimit,
	}, logger)

	var report *fanout.Report
	if cfg.Sync {
		// Calls in flight finish on cancellation, as in the concurrent path.
		adapter := syncclient.New(context.WithoutCancel(ctx), client)
		report = fanout.RunSequential(ctx, parts, adapter.Bind(cfg.Bucket), writer, obs)
		_ = adapter.Close()
	} else {
		report = fanout.New(client, writer, fanout.Config{Concurrency: cfg.Concurrency}, obs).Run(ctx, parts)
	}

	if cfg.FailedOut != "" {
		if err := partition.SaveList(cfg.FailedOut, report.FailedPartitions()); err != nil {
			logger.Error("Cannot write failed partition list", zap.String("path", cfg.FailedOut), zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Cannot write failed partition list", err)
		}
		logger.Info("Wrote failed partition list",
			zap.String("path", cfg.FailedOut),
			zap.Int("partitions", report.Failed))
	}

	if err := ctx.Err(); err != nil {
		return exitError(foundry.ExitSignalInt, "Manifest generation cancelled", err)
	}
	return nil
}

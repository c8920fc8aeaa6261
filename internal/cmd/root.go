// Package cmd implements the objmanifest command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/objmanifest/internal/config"
	"github.com/3leaps/objmanifest/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata reported by the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "objmanifest",
	Short: "Write per-partition object manifests for a bucket",
	Long: `objmanifest enumerates a bucket by fixed-width key prefix and writes one
CSV manifest (key,size,timestamp) per non-empty prefix.

Settings come from flags, OBJMANIFEST_* environment variables, an optional
config file and built-in defaults, in that order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (YAML)")
	pf.StringVar(&envFile, "env-file", "", "Load environment variables from a dotenv file")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.String("log-format", observability.FormatConsole, "Log format (console|json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	err := rootCmd.ExecuteContext(ctx)
	return exitCode(os.Stderr, err)
}

func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(w, "Error:", err)

	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// loadConfig resolves configuration for cmd and installs the CLI logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(cmd.Context(), config.Options{
		ConfigFile: cfgFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.ValidateLogging(); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	if err := observability.Init("", cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}

	observability.CLILogger.Debug("Loaded configuration",
		zap.String("config_file", cfgFile),
		zap.String("bucket", cfg.Bucket),
		zap.String("provider", cfg.Provider))
	return cfg, nil
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

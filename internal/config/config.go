// Package config loads objmanifest settings from defaults, an optional config
// file, the environment and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/objmanifest/internal/observability"
	"github.com/3leaps/objmanifest/pkg/partition"
	"github.com/3leaps/objmanifest/pkg/provider"
)

// Config is the resolved run configuration.
type Config struct {
	// Bucket is the bucket to enumerate (required).
	Bucket string `mapstructure:"bucket"`

	// Provider selects the client: s3 (default), minio, or file. For file,
	// EndpointURL is the local directory holding one directory per bucket.
	Provider string `mapstructure:"provider"`

	// Region, EndpointURL and Profile are optional connection settings. Empty
	// means the client's own resolution applies.
	Region      string `mapstructure:"region"`
	EndpointURL string `mapstructure:"endpoint_url"`
	Profile     string `mapstructure:"profile"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`

	// OutputDir is where manifests are written. Empty means a directory named
	// after the bucket in the working directory.
	OutputDir string `mapstructure:"output_dir"`

	Concurrency    int           `mapstructure:"concurrency"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	MaxKeys        int           `mapstructure:"max_keys"`
	Delimiter      string        `mapstructure:"delimiter"`

	Partition PartitionConfig `mapstructure:"partition"`

	// Partitions are glob filters applied to the generated partition set.
	Partitions []string `mapstructure:"partitions"`

	// PartitionsFile restricts the run to the partitions listed in a YAML
	// partition list, typically the failed_out file of an earlier run.
	PartitionsFile string `mapstructure:"partitions_file"`

	// FailedOut receives the failed partitions of the run as a partition list.
	FailedOut string `mapstructure:"failed_out"`

	// Events is the JSONL event destination: "" disabled, "-" stdout, or a path.
	Events string `mapstructure:"events"`

	// Sync runs partitions one at a time through the blocking adapter.
	Sync bool `mapstructure:"sync"`

	// ProgressEvery emits a progress line every N finished partitions. Zero
	// disables periodic progress.
	ProgressEvery int `mapstructure:"progress_every"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// PartitionConfig describes the partition scheme.
type PartitionConfig struct {
	Alphabet string `mapstructure:"alphabet"`
	Width    int    `mapstructure:"width"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// Scheme returns the configured partition scheme.
func (c *Config) Scheme() partition.Scheme {
	return partition.Scheme{Alphabet: c.Partition.Alphabet, Width: c.Partition.Width}
}

// ProviderType returns the parsed provider. Call Validate first.
func (c *Config) ProviderType() provider.ProviderType {
	p, _ := provider.ParseProviderType(c.Provider)
	return p
}

// OutputRoot returns the directory manifests are written to.
func (c *Config) OutputRoot() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return c.Bucket
}

// ValidatePartitioning checks the settings needed to compute the partition
// set, without requiring connection settings.
func (c *Config) ValidatePartitioning() error {
	if err := c.Scheme().Validate(); err != nil {
		return &ValidationError{Key: "partition", Message: err.Error()}
	}
	for _, p := range c.Partitions {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Key: "partitions", Message: "filter patterns must not be empty"}
		}
	}
	return nil
}

// Validate checks the full configuration for a generate run.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ValidationError{Key: "bucket", Message: "bucket name is required"}
	}

	p, ok := provider.ParseProviderType(c.Provider)
	if !ok {
		return &ValidationError{Key: "provider", Message: fmt.Sprintf("unsupported provider %q (want s3, minio or file)", c.Provider)}
	}
	if p != provider.ProviderS3 && c.EndpointURL == "" {
		return &ValidationError{Key: "endpoint_url", Message: fmt.Sprintf("required for the %s provider", p)}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ValidationError{Key: "access_key_id", Message: "access key ID and secret access key must be set together"}
	}

	switch {
	case c.Concurrency < 1:
		return &ValidationError{Key: "concurrency", Message: "must be at least 1"}
	case c.AttemptTimeout <= 0:
		return &ValidationError{Key: "attempt_timeout", Message: "must be positive"}
	case c.MaxAttempts < 0:
		return &ValidationError{Key: "max_attempts", Message: "must not be negative"}
	case c.RateLimit < 0:
		return &ValidationError{Key: "rate_limit", Message: "must not be negative"}
	case c.MaxKeys < 0 || c.MaxKeys > 1000:
		return &ValidationError{Key: "max_keys", Message: "must be between 0 and 1000"}
	case c.Delimiter == "":
		return &ValidationError{Key: "delimiter", Message: "must not be empty"}
	case c.ProgressEvery < 0:
		return &ValidationError{Key: "progress_every", Message: "must not be negative"}
	}

	if err := c.ValidatePartitioning(); err != nil {
		return err
	}
	return c.ValidateLogging()
}

// ValidateLogging checks the logging level and format.
func (c *Config) ValidateLogging() error {
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{Key: "logging.level", Message: err.Error()}
	}
	switch c.Logging.Format {
	case observability.FormatConsole, observability.FormatJSON:
	default:
		return &ValidationError{Key: "logging.format", Message: fmt.Sprintf("unknown format %q (want console or json)", c.Logging.Format)}
	}
	return nil
}

func (c *Config) normalize() {
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.EndpointURL = strings.TrimSpace(c.EndpointURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	parts := c.Partitions[:0]
	for _, p := range c.Partitions {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	c.Partitions = parts
}

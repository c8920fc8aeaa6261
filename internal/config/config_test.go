package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/objmanifest/pkg/provider"
)

func validConfig() *Config {
	return &Config{
		Bucket:         "bkt",
		Provider:       "s3",
		Concurrency:    32,
		AttemptTimeout: 5 * time.Second,
		Delimiter:      "/",
		Partition:      PartitionConfig{Alphabet: "0123456789abcdef", Width: 4},
		ProgressEvery:  1000,
		Logging:        LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty provider means s3", mutate: func(c *Config) { c.Provider = "" }},
		{name: "minio with endpoint", mutate: func(c *Config) {
			c.Provider = "minio"
			c.EndpointURL = "http://localhost:9000"
		}},
		{name: "file with root", mutate: func(c *Config) {
			c.Provider = "file"
			c.EndpointURL = "/srv/buckets"
		}},
		{name: "file without root", mutate: func(c *Config) { c.Provider = "file" }, key: "endpoint_url"},
		{name: "missing bucket", mutate: func(c *Config) { c.Bucket = "" }, key: "bucket"},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "gcs" }, key: "provider"},
		{name: "minio without endpoint", mutate: func(c *Config) { c.Provider = "minio" }, key: "endpoint_url"},
		{name: "half credentials", mutate: func(c *Config) { c.AccessKeyID = "AKIA" }, key: "access_key_id"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, key: "concurrency"},
		{name: "zero attempt timeout", mutate: func(c *Config) { c.AttemptTimeout = 0 }, key: "attempt_timeout"},
		{name: "negative attempts", mutate: func(c *Config) { c.MaxAttempts = -1 }, key: "max_attempts"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit = -1 }, key: "rate_limit"},
		{name: "max keys too large", mutate: func(c *Config) { c.MaxKeys = 1001 }, key: "max_keys"},
		{name: "empty delimiter", mutate: func(c *Config) { c.Delimiter = "" }, key: "delimiter"},
		{name: "negative progress", mutate: func(c *Config) { c.ProgressEvery = -1 }, key: "progress_every"},
		{name: "zero width", mutate: func(c *Config) { c.Partition.Width = 0 }, key: "partition"},
		{name: "blank filter", mutate: func(c *Config) { c.Partitions = []string{" "} }, key: "partitions"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "chatty" }, key: "logging.level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, key: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.key == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.key, ve.Key)
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "bkt", cfg.OutputRoot())
	cfg.OutputDir = "/tmp/out"
	assert.Equal(t, "/tmp/out", cfg.OutputRoot())

	assert.Equal(t, provider.ProviderS3, cfg.ProviderType())
	cfg.Provider = "minio"
	assert.Equal(t, provider.ProviderMinIO, cfg.ProviderType())

	scheme := cfg.Scheme()
	assert.Equal(t, 65536, scheme.Count())
}

func TestConfig_Normalize(t *testing.T) {
	cfg := &Config{
		Bucket:     " bkt ",
		Provider:   " MinIO",
		Partitions: []string{" 00* ", "", "ff"},
		Logging:    LoggingConfig{Level: "DEBUG", Format: "JSON"},
	}
	cfg.normalize()

	assert.Equal(t, "bkt", cfg.Bucket)
	assert.Equal(t, "minio", cfg.Provider)
	assert.Equal(t, []string{"00*", "ff"}, cfg.Partitions)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// Package s3 implements the provider interfaces for AWS S3 and S3-compatible storage.
package s3

import "time"

// Config configures an S3 provider.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//  5. EC2 instance metadata / ECS task role / EKS IRSA
//
// Region handling:
//   - For AWS S3: If Region is empty and not set via environment/profile,
//     defaults to us-east-1 (standard AWS convention).
//   - For S3-compatible stores: when Endpoint is set, no default region is applied.
type Config struct {
	// Bucket is the default S3 bucket name (required).
	Bucket string

	// Region is the AWS region. Optional.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores or local
	// test deployments (e.g. http://localhost:5555). Leave empty for AWS S3.
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	ForcePathStyle bool

	// MaxKeys is the default page size for list operations.
	// Zero uses the provider default (1000). Values over 1000 are clamped.
	MaxKeys int

	// AttemptTimeout bounds every individual HTTP attempt. A stalled attempt
	// fails after this long instead of blocking its partition indefinitely.
	// Zero uses DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// MaxAttempts is the SDK retryer's attempt budget per operation.
	// Zero keeps the SDK default.
	MaxAttempts int
}

// DefaultMaxKeys is the default page size for list operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// DefaultAttemptTimeout is the per-attempt network timeout.
const DefaultAttemptTimeout = 5 * time.Second

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	// If one explicit credential is set, both must be set
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	if c.AttemptTimeout < 0 {
		return &ConfigError{Field: "AttemptTimeout", Message: "must not be negative"}
	}
	if c.MaxAttempts < 0 {
		return &ConfigError{Field: "MaxAttempts", Message: "must not be negative"}
	}

	return nil
}

// attemptTimeout returns the effective per-attempt timeout.
func (c *Config) attemptTimeout() time.Duration {
	if c.AttemptTimeout <= 0 {
		return DefaultAttemptTimeout
	}
	return c.AttemptTimeout
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

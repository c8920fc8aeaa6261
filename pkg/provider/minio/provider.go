// Package minio implements delimiter listing on top of minio-go for
// S3-compatible deployments that are better served by the MinIO client.
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3leaps/objmanifest/pkg/provider"
)

// DefaultMaxKeys is the page size used when none is requested.
const DefaultMaxKeys = 1000

// DefaultAttemptTimeout bounds the wait for response headers on each request.
const DefaultAttemptTimeout = 5 * time.Second

// API is the subset of *miniogo.Core used by Provider.
type API interface {
	ListObjectsV2(bucketName, objectPrefix, startAfter, continuationToken, delimiter string, maxkeys int) (miniogo.ListBucketV2Result, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Config configures a MinIO provider.
type Config struct {
	// Bucket is the default bucket name (required).
	Bucket string

	// Endpoint is the server URL, e.g. https://minio.internal:9000 (required).
	Endpoint string

	// Region is passed through to the client. Optional.
	Region string

	// Profile selects a section of the shared AWS credentials file when no
	// static keys are given.
	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style bucket addressing.
	ForcePathStyle bool

	// MaxKeys is the default page size. Zero uses DefaultMaxKeys.
	MaxKeys int

	// AttemptTimeout bounds how long a request waits for response headers.
	AttemptTimeout time.Duration
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if c.Endpoint == "" {
		return &ConfigError{Field: "Endpoint", Message: "endpoint URL is required for the minio provider"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.AttemptTimeout < 0 {
		return &ConfigError{Field: "AttemptTimeout", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "minio config: " + e.Field + ": " + e.Message
}

// Provider lists objects through the MinIO client.
type Provider struct {
	client  API
	bucket  string
	maxKeys int
}

var (
	_ provider.DelimiterLister = (*Provider)(nil)
	_ provider.BucketChecker   = (*Provider)(nil)
)

// New creates a provider connected to cfg.Endpoint.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderMinIO, Bucket: cfg.Bucket, Err: err}
	}

	transport, err := miniogo.DefaultTransport(secure)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderMinIO, Bucket: cfg.Bucket, Err: err}
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	transport.ResponseHeaderTimeout = timeout

	opts := &miniogo.Options{
		Creds:     credentialsFor(cfg),
		Secure:    secure,
		Transport: transport,
		Region:    cfg.Region,
	}
	if cfg.ForcePathStyle {
		opts.BucketLookup = miniogo.BucketLookupPath
	}

	core, err := miniogo.NewCore(host, opts)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderMinIO, Bucket: cfg.Bucket, Err: err}
	}
	return NewFromAPI(core, cfg), nil
}

// NewFromAPI creates a provider around an existing client.
func NewFromAPI(api API, cfg Config) *Provider {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 || maxKeys > DefaultMaxKeys {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{client: api, bucket: cfg.Bucket, maxKeys: maxKeys}
}

// credentialsFor prefers static keys, then the AWS environment, then the
// shared credentials file.
func credentialsFor(cfg Config) *credentials.Credentials {
	if cfg.AccessKeyID != "" {
		return credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{Profile: cfg.Profile},
	})
}

// splitEndpoint turns an endpoint URL into the host form minio-go expects.
// A bare host:port is treated as https.
func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}

// Bucket returns the provider's default bucket.
func (p *Provider) Bucket() string {
	return p.bucket
}

// ListWithDelimiter returns one page of a delimiter listing.
//
// The MinIO core call does not take a context, so cancellation is checked
// before the request is issued.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	bucket := p.bucket
	if opts.Bucket != "" {
		bucket = opts.Bucket
	}
	if err := ctx.Err(); err != nil {
		return nil, &provider.ProviderError{Op: "ListWithDelimiter", Provider: provider.ProviderMinIO, Bucket: bucket, Key: opts.Prefix, Err: err}
	}

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > DefaultMaxKeys {
		maxKeys = p.maxKeys
	}

	out, err := p.client.ListObjectsV2(bucket, opts.Prefix, "", opts.ContinuationToken, opts.Delimiter, maxKeys)
	if err != nil {
		return nil, wrapError("ListWithDelimiter", bucket, opts.Prefix, err)
	}

	objects := make([]provider.ObjectSummary, 0, len(out.Contents))
	for i, obj := range out.Contents {
		var malformed *provider.MalformedObjectError
		switch {
		case obj.Key == "":
			malformed = &provider.MalformedObjectError{Field: "Key", Index: i}
		case obj.Size < 0:
			malformed = &provider.MalformedObjectError{Field: "Size", Key: obj.Key, Index: i}
		case obj.LastModified.IsZero():
			malformed = &provider.MalformedObjectError{Field: "LastModified", Key: obj.Key, Index: i}
		}
		if malformed != nil {
			return nil, &provider.ProviderError{
				Op:       "ListWithDelimiter",
				Provider: provider.ProviderMinIO,
				Bucket:   bucket,
				Key:      opts.Prefix,
				Err:      malformed,
			}
		}
		objects = append(objects, provider.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	prefixes := make([]string, 0, len(out.CommonPrefixes))
	for i, cp := range out.CommonPrefixes {
		if cp.Prefix == "" {
			return nil, &provider.ProviderError{
				Op:       "ListWithDelimiter",
				Provider: provider.ProviderMinIO,
				Bucket:   bucket,
				Key:      opts.Prefix,
				Err:      &provider.MalformedObjectError{Field: "Prefix", Index: i},
			}
		}
		prefixes = append(prefixes, cp.Prefix)
	}

	return &provider.ListWithDelimiterResult{
		Objects:           objects,
		CommonPrefixes:    prefixes,
		ContinuationToken: out.NextContinuationToken,
		IsTruncated:       out.IsTruncated,
	}, nil
}

// CheckBucket verifies the bucket exists and is reachable.
func (p *Provider) CheckBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		bucket = p.bucket
	}
	ok, err := p.client.BucketExists(ctx, bucket)
	if err != nil {
		return wrapError("CheckBucket", bucket, "", err)
	}
	if !ok {
		return &provider.ProviderError{
			Op:       "CheckBucket",
			Provider: provider.ProviderMinIO,
			Bucket:   bucket,
			Err:      provider.ErrBucketNotFound,
		}
	}
	return nil
}

func wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderMinIO,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}
	if sentinel := classify(err); sentinel != nil {
		wrapped.Err = fmt.Errorf("%w: %w", sentinel, err)
	}
	return wrapped
}

// classify maps a MinIO error response to a provider sentinel, or nil.
func classify(err error) error {
	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		resp = miniogo.ToErrorResponse(err)
	}
	switch resp.Code {
	case "NoSuchBucket":
		return provider.ErrBucketNotFound
	case "NoSuchKey":
		return provider.ErrNotFound
	case "AccessDenied":
		return provider.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return provider.ErrInvalidCredentials
	case "SlowDown", "SlowDownRead", "Throttling", "RequestLimitExceeded":
		return provider.ErrThrottled
	case "ServiceUnavailable", "InternalError", "XMinioServerNotInitialized":
		return provider.ErrProviderUnavailable
	case "RequestTimeout":
		return provider.ErrTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.ErrTimeout
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return provider.ErrTimeout
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return provider.ErrProviderUnavailable
	}
	return nil
}

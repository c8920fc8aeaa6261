package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/objmanifest/pkg/provider"
)

// API is the subset of the S3 client used by Provider.
// *s3.Client satisfies it; tests substitute fakes.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Provider implements delimiter listing for AWS S3 and S3-compatible storage.
//
// Provider holds no per-call state and is safe for concurrent use.
type Provider struct {
	client  API
	bucket  string
	maxKeys int
}

// Ensure Provider implements the interfaces.
var (
	_ provider.DelimiterLister = (*Provider)(nil)
	_ provider.BucketChecker   = (*Provider)(nil)
)

// New creates a new S3 provider with the given configuration.
//
// The provider uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config. Every HTTP attempt is bounded by
// cfg.AttemptTimeout.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Bucket:   cfg.Bucket,
			Err:      err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewFromAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewFromAPI creates a provider around an existing client.
func NewFromAPI(api API, cfg Config) *Provider {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{
		client:  api,
		bucket:  cfg.Bucket,
		maxKeys: maxKeys,
	}
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(cfg.attemptTimeout())),
	}

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// Bucket returns the provider's default bucket.
func (p *Provider) Bucket() string {
	return p.bucket
}

// ListWithDelimiter returns one page of a delimiter listing.
//
// Every object must carry Key, Size and LastModified, and every common prefix
// must carry Prefix. The first entry missing a field fails the whole page
// with a MalformedObjectError.
func (p *Provider) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	bucket := p.bucket
	if opts.Bucket != "" {
		bucket = opts.Bucket
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapError("ListWithDelimiter", bucket, opts.Prefix, err)
	}

	objects := make([]provider.ObjectSummary, 0, len(output.Contents))
	for i, obj := range output.Contents {
		summary, err := toSummary(i, obj)
		if err != nil {
			return nil, &provider.ProviderError{
				Op:       "ListWithDelimiter",
				Provider: provider.ProviderS3,
				Bucket:   bucket,
				Key:      opts.Prefix,
				Err:      err,
			}
		}
		objects = append(objects, summary)
	}

	prefixes := make([]string, 0, len(output.CommonPrefixes))
	for i, cp := range output.CommonPrefixes {
		if cp.Prefix == nil {
			return nil, &provider.ProviderError{
				Op:       "ListWithDelimiter",
				Provider: provider.ProviderS3,
				Bucket:   bucket,
				Key:      opts.Prefix,
				Err:      &provider.MalformedObjectError{Field: "Prefix", Index: i},
			}
		}
		prefixes = append(prefixes, *cp.Prefix)
	}

	result := &provider.ListWithDelimiterResult{
		Objects:        objects,
		CommonPrefixes: prefixes,
		IsTruncated:    aws.ToBool(output.IsTruncated),
	}
	if output.NextContinuationToken != nil {
		result.ContinuationToken = *output.NextContinuationToken
	}

	return result, nil
}

// CheckBucket verifies the bucket exists and is reachable.
func (p *Provider) CheckBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		bucket = p.bucket
	}
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	// HeadBucket reports a missing bucket as a bare NotFound.
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return &provider.ProviderError{
			Op:       "CheckBucket",
			Provider: provider.ProviderS3,
			Bucket:   bucket,
			Err:      fmt.Errorf("%w: %w", provider.ErrBucketNotFound, err),
		}
	}
	return wrapError("CheckBucket", bucket, "", err)
}

// toSummary converts an SDK object, rejecting entries with missing fields.
func toSummary(i int, obj types.Object) (provider.ObjectSummary, error) {
	key := aws.ToString(obj.Key)
	switch {
	case obj.Key == nil:
		return provider.ObjectSummary{}, &provider.MalformedObjectError{Field: "Key", Index: i}
	case obj.Size == nil:
		return provider.ObjectSummary{}, &provider.MalformedObjectError{Field: "Size", Key: key, Index: i}
	case obj.LastModified == nil:
		return provider.ObjectSummary{}, &provider.MalformedObjectError{Field: "LastModified", Key: key, Index: i}
	}
	return provider.ObjectSummary{
		Key:          key,
		Size:         *obj.Size,
		LastModified: *obj.LastModified,
	}, nil
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
// The original error stays in the chain so logs keep the SDK detail.
func wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	if sentinel := classify(err); sentinel != nil {
		wrapped.Err = fmt.Errorf("%w: %w", sentinel, err)
	}
	return wrapped
}

// classify maps an SDK error to a provider sentinel, or nil if unknown.
func classify(err error) error {
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchBucket):
		return provider.ErrBucketNotFound
	case errors.As(err, &noSuchKey):
		return provider.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return provider.ErrNotFound
		case "NoSuchBucket":
			return provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			return provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return provider.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			return provider.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			return provider.ErrProviderUnavailable
		case "RequestTimeout":
			return provider.ErrTimeout
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.ErrTimeout
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return provider.ErrTimeout
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		return provider.ErrBucketNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		return provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		return provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		return provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		return provider.ErrProviderUnavailable
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		return provider.ErrProviderUnavailable
	}
	return nil
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the us-east-1 fallback for AWS S3 after SDK loading.
//
// sdkRegion already reflects an explicit cfgRegion or env/profile resolution.
// For S3-compatible stores (endpoint set), no defaulting occurs.
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if cfgRegion != "" {
		return cfgRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

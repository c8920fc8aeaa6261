// Package provider defines abstractions for listing cloud object storage.
//
// Providers implement a minimal surface area focused on delimiter listing.
// Authentication uses SDK default credential chains - providers should not
// implement custom auth logic.
package provider

import (
	"context"
	"time"
)

// DelimiterLister lists one page of a bucket using a path delimiter.
//
// Delimiter listing returns:
//   - Objects directly under Prefix (no nested delimiter in the remainder)
//   - CommonPrefixes (immediate child prefixes)
//
// Implementations map to provider-native delimiter listing (e.g., S3
// ListObjectsV2 with Delimiter). Implementations must be safe for concurrent
// use and must reject objects with missing fields with a MalformedObjectError
// rather than dropping them.
type DelimiterLister interface {
	ListWithDelimiter(ctx context.Context, opts ListWithDelimiterOptions) (*ListWithDelimiterResult, error)
}

// BucketChecker verifies that a bucket is reachable with the current
// credentials. It is used once during setup, before any listing.
type BucketChecker interface {
	CheckBucket(ctx context.Context, bucket string) error
}

// ListWithDelimiterOptions configures a delimiter listing operation.
type ListWithDelimiterOptions struct {
	// Bucket overrides the provider's configured bucket when non-empty.
	Bucket string

	// Prefix filters results to keys starting with this value.
	Prefix string

	// Delimiter groups keys (e.g., "/").
	Delimiter string

	// ContinuationToken resumes listing from a previous ListWithDelimiterResult.
	ContinuationToken string

	// MaxKeys limits the number of keys returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListWithDelimiterResult contains a page of results from a delimiter listing.
type ListWithDelimiterResult struct {
	// Objects are object summaries directly under the requested Prefix.
	Objects []ObjectSummary

	// CommonPrefixes are the immediate child prefixes.
	CommonPrefixes []string

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ProviderType identifies a cloud storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage via the AWS SDK.
	ProviderS3 ProviderType = "s3"

	// ProviderMinIO represents S3-compatible storage via the MinIO client.
	ProviderMinIO ProviderType = "minio"

	// ProviderFile represents a local directory tree laid out as buckets.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType validates a provider name.
func ParseProviderType(s string) (ProviderType, bool) {
	switch ProviderType(s) {
	case ProviderS3, "":
		return ProviderS3, true
	case ProviderMinIO:
		return ProviderMinIO, true
	case ProviderFile:
		return ProviderFile, true
	}
	return "", false
}

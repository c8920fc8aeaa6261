// Package listing drains the paginated delimiter listing of one prefix into
// validated object and common-prefix records.
package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/objmanifest/pkg/provider"
)

// DefaultDelimiter groups keys into directory-like common prefixes.
const DefaultDelimiter = "/"

// debugSample is how many objects and prefixes are logged at debug level.
const debugSample = 10

// ErrMissingContinuationToken indicates a truncated page with no token to
// request the next one.
var ErrMissingContinuationToken = errors.New("truncated listing without continuation token")

// ObjectRecord is one listed object as it appears in a manifest.
type ObjectRecord struct {
	Key       string
	Size      uint64
	Timestamp string
}

// CommonPrefixRecord is one grouped sub-prefix reported by a delimiter listing.
type CommonPrefixRecord struct {
	Prefix string
}

// Result is the full listing of one prefix, in server order.
type Result struct {
	Objects        []ObjectRecord
	CommonPrefixes []CommonPrefixRecord
}

// Empty reports whether the listing found no objects.
func (r *Result) Empty() bool {
	return r == nil || len(r.Objects) == 0
}

// Config configures a Client.
type Config struct {
	// Bucket is the bucket List reads from.
	Bucket string

	// Delimiter is passed on every page request. Default: "/"
	Delimiter string

	// MaxKeys is the requested page size. Zero leaves it to the store.
	MaxKeys int

	// RateLimit caps page requests per second across all callers sharing
	// the client. Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns the default listing configuration.
func DefaultConfig() Config {
	return Config{Delimiter: DefaultDelimiter}
}

// Client lists prefixes through a provider.
//
// Client is safe for concurrent use; it holds no per-call state besides the
// shared rate limiter.
type Client struct {
	lister  provider.DelimiterLister
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a listing client. A nil logger disables debug output.
func New(l provider.DelimiterLister, cfg Config, logger *zap.Logger) *Client {
	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultDelimiter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{lister: l, config: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// Bucket returns the configured bucket.
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// List returns every object and common prefix directly under prefix in the
// configured bucket.
func (c *Client) List(ctx context.Context, prefix string) (*Result, error) {
	return c.ListBucket(ctx, c.config.Bucket, prefix)
}

// ListBucket is List against an explicit bucket.
//
// Pages are consumed in the order the store returns them and concatenated.
// The first request error or invalid entry aborts the remaining pages and
// nothing partial is returned.
func (c *Client) ListBucket(ctx context.Context, bucket, prefix string) (*Result, error) {
	result := &Result{
		Objects:        []ObjectRecord{},
		CommonPrefixes: []CommonPrefixRecord{},
	}

	var token string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		page, err := c.lister.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{
			Bucket:            bucket,
			Prefix:            prefix,
			Delimiter:         c.config.Delimiter,
			ContinuationToken: token,
			MaxKeys:           c.config.MaxKeys,
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Objects {
			rec, err := toRecord(len(result.Objects), obj)
			if err != nil {
				return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
			}
			result.Objects = append(result.Objects, rec)
		}
		for _, p := range page.CommonPrefixes {
			result.CommonPrefixes = append(result.CommonPrefixes, CommonPrefixRecord{Prefix: p})
		}

		if !page.IsTruncated {
			break
		}
		if page.ContinuationToken == "" {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, ErrMissingContinuationToken)
		}
		token = page.ContinuationToken
	}

	c.logSample(prefix, result)
	return result, nil
}

func (c *Client) logSample(prefix string, result *Result) {
	if !c.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	c.logger.Debug("Listing complete",
		zap.String("prefix", prefix),
		zap.Int("objects", len(result.Objects)),
		zap.Int("common_prefixes", len(result.CommonPrefixes)),
	)
	for _, obj := range result.Objects[:min(debugSample, len(result.Objects))] {
		c.logger.Debug("Object", zap.String("key", obj.Key))
	}
	for _, cp := range result.CommonPrefixes[:min(debugSample, len(result.CommonPrefixes))] {
		c.logger.Debug("Common prefix", zap.String("prefix", cp.Prefix))
	}
}

// toRecord validates a provider summary and renders it as a record.
func toRecord(i int, obj provider.ObjectSummary) (ObjectRecord, error) {
	switch {
	case obj.Key == "":
		return ObjectRecord{}, &provider.MalformedObjectError{Field: "Key", Index: i}
	case obj.Size < 0:
		return ObjectRecord{}, &provider.MalformedObjectError{Field: "Size", Key: obj.Key, Index: i}
	case obj.LastModified.IsZero():
		return ObjectRecord{}, &provider.MalformedObjectError{Field: "LastModified", Key: obj.Key, Index: i}
	}
	return ObjectRecord{
		Key:       obj.Key,
		Size:      uint64(obj.Size),
		Timestamp: FormatTimestamp(obj.LastModified),
	}, nil
}

// FormatTimestamp renders t as RFC 3339 in UTC, with fractional seconds only
// when they are non-zero.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/objmanifest/pkg/provider"
)

// fakeLister serves pages keyed by continuation token.
type fakeLister struct {
	mu    sync.Mutex
	pages map[string]*provider.ListWithDelimiterResult
	errAt map[string]error
	calls []provider.ListWithDelimiterOptions
}

func (f *fakeLister) ListWithDelimiter(_ context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if err := f.errAt[opts.ContinuationToken]; err != nil {
		return nil, err
	}
	page, ok := f.pages[opts.ContinuationToken]
	if !ok {
		return &provider.ListWithDelimiterResult{}, nil
	}
	return page, nil
}

var ts = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func obj(key string, size int64) provider.ObjectSummary {
	return provider.ObjectSummary{Key: key, Size: size, LastModified: ts}
}

func TestList_ConcatenatesPagesInOrder(t *testing.T) {
	fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
		"": {
			Objects:           []provider.ObjectSummary{obj("0000/a", 1), obj("0000/b", 2)},
			CommonPrefixes:    []string{"0000/dir1/"},
			IsTruncated:       true,
			ContinuationToken: "p2",
		},
		"p2": {
			Objects:           []provider.ObjectSummary{obj("0000/c", 3)},
			IsTruncated:       true,
			ContinuationToken: "p3",
		},
		"p3": {
			Objects:        []provider.ObjectSummary{obj("0000/d", 4)},
			CommonPrefixes: []string{"0000/dir2/"},
		},
	}}
	c := New(fake, Config{Bucket: "bkt"}, nil)

	res, err := c.List(context.Background(), "0000")
	require.NoError(t, err)

	keys := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"0000/a", "0000/b", "0000/c", "0000/d"}, keys)
	assert.Equal(t, []CommonPrefixRecord{{"0000/dir1/"}, {"0000/dir2/"}}, res.CommonPrefixes)

	require.Len(t, fake.calls, 3)
	assert.Equal(t, []string{"", "p2", "p3"}, []string{fake.calls[0].ContinuationToken, fake.calls[1].ContinuationToken, fake.calls[2].ContinuationToken})
	for _, call := range fake.calls {
		assert.Equal(t, "bkt", call.Bucket)
		assert.Equal(t, "0000", call.Prefix)
		assert.Equal(t, "/", call.Delimiter)
	}
}

func TestList_RecordFields(t *testing.T) {
	fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
		"": {Objects: []provider.ObjectSummary{
			{Key: "0001/x", Size: 0, LastModified: ts},
			{Key: "0001/y", Size: 1 << 40, LastModified: time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.FixedZone("x", 3600))},
		}},
	}}
	res, err := New(fake, DefaultConfig(), nil).List(context.Background(), "0001")
	require.NoError(t, err)

	assert.Equal(t, ObjectRecord{Key: "0001/x", Size: 0, Timestamp: "2024-01-02T03:04:05Z"}, res.Objects[0])
	assert.Equal(t, ObjectRecord{Key: "0001/y", Size: 1 << 40, Timestamp: "2024-01-02T02:04:05.5Z"}, res.Objects[1])
}

func TestList_EmptyPrefix(t *testing.T) {
	fake := &fakeLister{}
	res, err := New(fake, Config{Bucket: "bkt"}, nil).List(context.Background(), "ffff")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.NotNil(t, res.Objects)
	assert.Empty(t, res.CommonPrefixes)
}

func TestList_InvalidEntryAbortsRemainingPages(t *testing.T) {
	tests := []struct {
		name  string
		bad   provider.ObjectSummary
		field string
	}{
		{"empty key", provider.ObjectSummary{Size: 1, LastModified: ts}, "Key"},
		{"negative size", provider.ObjectSummary{Key: "00aa/x", Size: -5, LastModified: ts}, "Size"},
		{"no timestamp", provider.ObjectSummary{Key: "00aa/x", Size: 1}, "LastModified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
				"":   {Objects: []provider.ObjectSummary{obj("00aa/ok", 1), tt.bad}, IsTruncated: true, ContinuationToken: "p2"},
				"p2": {Objects: []provider.ObjectSummary{obj("00aa/later", 1)}},
			}}
			res, err := New(fake, Config{Bucket: "bkt"}, nil).List(context.Background(), "00aa")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, provider.IsMalformed(err))

			var malformed *provider.MalformedObjectError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.field, malformed.Field)
			assert.Equal(t, 1, malformed.Index)
			assert.Len(t, fake.calls, 1)
		})
	}
}

func TestList_RequestErrorAbortsRemainingPages(t *testing.T) {
	boom := &provider.ProviderError{Op: "ListWithDelimiter", Provider: provider.ProviderS3, Err: provider.ErrThrottled}
	fake := &fakeLister{
		pages: map[string]*provider.ListWithDelimiterResult{
			"": {Objects: []provider.ObjectSummary{obj("0002/a", 1)}, IsTruncated: true, ContinuationToken: "p2"},
		},
		errAt: map[string]error{"p2": boom},
	}
	res, err := New(fake, Config{Bucket: "bkt"}, nil).List(context.Background(), "0002")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, provider.ErrThrottled)
	assert.Len(t, fake.calls, 2)
}

func TestList_TruncatedWithoutToken(t *testing.T) {
	fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
		"": {Objects: []provider.ObjectSummary{obj("0003/a", 1)}, IsTruncated: true},
	}}
	_, err := New(fake, Config{Bucket: "bkt"}, nil).List(context.Background(), "0003")
	assert.ErrorIs(t, err, ErrMissingContinuationToken)
}

func TestList_CancelledContext(t *testing.T) {
	fake := &fakeLister{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fake, Config{Bucket: "bkt"}, nil).List(ctx, "0000")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.calls)
}

func TestListBucket_OverridesBucket(t *testing.T) {
	fake := &fakeLister{}
	c := New(fake, Config{Bucket: "default", MaxKeys: 100}, nil)

	_, err := c.ListBucket(context.Background(), "other", "abcd")
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "other", fake.calls[0].Bucket)
	assert.Equal(t, 100, fake.calls[0].MaxKeys)
	assert.Equal(t, "default", c.Bucket())
}

func TestList_RateLimited(t *testing.T) {
	fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
		"":   {IsTruncated: true, ContinuationToken: "p2"},
		"p2": {IsTruncated: true, ContinuationToken: "p3"},
	}}
	c := New(fake, Config{Bucket: "bkt", RateLimit: 20}, nil)

	start := time.Now()
	_, err := c.List(context.Background(), "0000")
	require.NoError(t, err)
	// Burst of one: three requests need at least two refill intervals.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestList_DebugLogsFirstTen(t *testing.T) {
	objects := make([]provider.ObjectSummary, 0, 15)
	for i := range 15 {
		objects = append(objects, obj(fmt.Sprintf("0000/%02d", i), 1))
	}
	prefixes := []string{"0000/a/", "0000/b/"}
	fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
		"": {Objects: objects, CommonPrefixes: prefixes},
	}}

	core, logs := observer.New(zapcore.DebugLevel)
	_, err := New(fake, Config{Bucket: "bkt"}, zap.New(core)).List(context.Background(), "0000")
	require.NoError(t, err)

	summary := logs.FilterMessage("Listing complete").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(15), summary[0].ContextMap()["objects"])
	assert.Equal(t, int64(2), summary[0].ContextMap()["common_prefixes"])
	assert.Equal(t, 10, logs.FilterMessage("Object").Len())
	assert.Equal(t, 2, logs.FilterMessage("Common prefix").Len())
}

func TestList_NoDebugLogsAtInfo(t *testing.T) {
	fake := &fakeLister{pages: map[string]*provider.ListWithDelimiterResult{
		"": {Objects: []provider.ObjectSummary{obj("0000/a", 1)}},
	}}
	core, logs := observer.New(zapcore.InfoLevel)
	_, err := New(fake, Config{Bucket: "bkt"}, zap.New(core)).List(context.Background(), "0000")
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

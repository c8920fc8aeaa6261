package syncclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/objmanifest/pkg/fanout"
	"github.com/3leaps/objmanifest/pkg/listing"
	"github.com/3leaps/objmanifest/pkg/manifest"
)

// fakeBucketLister records calls and the goroutine-overlap it observes.
type fakeBucketLister struct {
	mu       sync.Mutex
	calls    []string
	objects  map[string]int
	errs     map[string]error
	inFlight atomic.Int64
	peak     atomic.Int64
	block    chan struct{}
}

func (f *fakeBucketLister) ListBucket(ctx context.Context, bucket, prefix string) (*listing.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.peak.Load() {
		f.peak.Store(n)
	}

	f.mu.Lock()
	f.calls = append(f.calls, bucket+"/"+prefix)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[prefix]; err != nil {
		return nil, err
	}
	res := &listing.Result{Objects: []listing.ObjectRecord{}}
	for range f.objects[prefix] {
		res.Objects = append(res.Objects, listing.ObjectRecord{Key: prefix + "/k", Size: 1, Timestamp: "t"})
	}
	return res, nil
}

func TestAdapter_List(t *testing.T) {
	fake := &fakeBucketLister{objects: map[string]int{"0000": 2}}
	a := New(context.Background(), fake)
	defer a.Close()

	res, err := a.List("bkt", "0000")
	require.NoError(t, err)
	assert.Len(t, res.Objects, 2)

	res, err = a.List("other", "0001")
	require.NoError(t, err)
	assert.True(t, res.Empty())

	assert.Equal(t, []string{"bkt/0000", "other/0001"}, fake.calls)
}

func TestAdapter_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeBucketLister{errs: map[string]error{"0002": boom}}
	a := New(context.Background(), fake)
	defer a.Close()

	_, err := a.List("bkt", "0002")
	assert.ErrorIs(t, err, boom)

	// The adapter keeps working after a failed call.
	_, err = a.List("bkt", "0003")
	assert.NoError(t, err)
}

func TestAdapter_SerializesConcurrentCallers(t *testing.T) {
	fake := &fakeBucketLister{}
	a := New(context.Background(), fake)
	defer a.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.List("bkt", "0000")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fake.peak.Load())
	assert.Len(t, fake.calls, 20)
}

func TestAdapter_Close(t *testing.T) {
	a := New(context.Background(), &fakeBucketLister{})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.List("bkt", "0000")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAdapter_CloseCancelsInProgressCall(t *testing.T) {
	fake := &fakeBucketLister{block: make(chan struct{})}
	a := New(context.Background(), fake)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.List("bkt", "0000")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return fake.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("List did not return after Close")
	}
}

func TestAdapter_BindDrivesSequentialRun(t *testing.T) {
	fake := &fakeBucketLister{
		objects: map[string]int{"0000": 2},
		errs:    map[string]error{"0002": errors.New("throttled")},
	}
	a := New(context.Background(), fake)
	defer a.Close()

	fs := memfs.New()
	report := fanout.RunSequential(context.Background(), []string{"0000", "0001", "0002"}, a.Bind("bkt"), manifest.NewWriter(fs), nil)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Empty)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"bkt/0000", "bkt/0001", "bkt/0002"}, fake.calls)

	records, err := manifest.ReadFile(fs, "0000")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

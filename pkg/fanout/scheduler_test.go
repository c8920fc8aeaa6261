package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/objmanifest/pkg/listing"
	"github.com/3leaps/objmanifest/pkg/provider"
)

// fakeLister returns a fixed number of objects per partition, or an error.
type fakeLister struct {
	objects map[string]int
	errs    map[string]error
	delay   func(partition string) time.Duration

	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

func (f *fakeLister) List(ctx context.Context, prefix string) (*listing.Result, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay != nil {
		time.Sleep(f.delay(prefix))
	}
	if err := f.errs[prefix]; err != nil {
		return nil, err
	}
	res := &listing.Result{Objects: []listing.ObjectRecord{}}
	for i := range f.objects[prefix] {
		res.Objects = append(res.Objects, listing.ObjectRecord{
			Key:       fmt.Sprintf("%s/obj-%d", prefix, i),
			Size:      uint64(i),
			Timestamp: "2024-01-01T00:00:00Z",
		})
	}
	return res, nil
}

// fakeWriter records what it was asked to write.
type fakeWriter struct {
	mu      sync.Mutex
	written map[string]int
	calls   []string
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{written: map[string]int{}}
}

func (f *fakeWriter) Write(partition string, result *listing.Result) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, partition)
	if f.err != nil {
		return false, f.err
	}
	if result.Empty() {
		return false, nil
	}
	f.written[partition] = len(result.Objects)
	return true, nil
}

func TestScheduler_Scenario(t *testing.T) {
	boom := &provider.ProviderError{Op: "ListWithDelimiter", Provider: provider.ProviderS3, Err: provider.ErrThrottled}
	lister := &fakeLister{
		objects: map[string]int{"0000": 2, "0001": 0},
		errs:    map[string]error{"0002": boom},
	}
	writer := newFakeWriter()

	report := New(lister, writer, Config{Concurrency: 2}, nil).Run(context.Background(), []string{"0000", "0001", "0002"})

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, StatusSuccess, report.Outcomes[0].Status)
	assert.Equal(t, 2, report.Outcomes[0].Objects)
	assert.Equal(t, StatusEmptySkipped, report.Outcomes[1].Status)
	assert.Equal(t, StatusFailed, report.Outcomes[2].Status)
	assert.ErrorIs(t, report.Outcomes[2].Err, provider.ErrThrottled)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Empty)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int64(2), report.Objects)
	assert.Equal(t, []string{"0002"}, report.FailedPartitions())
	assert.Equal(t, map[string]int{"0000": 2}, writer.written)
	assert.NotContains(t, writer.calls, "0002")
}

func TestScheduler_ConcurrencyBound(t *testing.T) {
	const limit = 4
	partitions := make([]string, 40)
	for i := range partitions {
		partitions[i] = fmt.Sprintf("%04x", i)
	}
	lister := &fakeLister{
		objects: map[string]int{},
		delay: func(p string) time.Duration {
			if p[3]%2 == 0 {
				return 20 * time.Millisecond
			}
			return time.Millisecond
		},
	}
	for _, p := range partitions {
		lister.objects[p] = 1
	}

	report := New(lister, newFakeWriter(), Config{Concurrency: limit}, nil).Run(context.Background(), partitions)

	assert.LessOrEqual(t, lister.peak.Load(), int64(limit))
	assert.Greater(t, lister.peak.Load(), int64(1), "jobs should overlap")
	assert.Equal(t, int64(len(partitions)), lister.calls.Load())
	assert.Equal(t, len(partitions), report.Succeeded)
	for i, o := range report.Outcomes {
		assert.Equal(t, partitions[i], o.Partition)
	}
}

func TestScheduler_LimitOneIsSequential(t *testing.T) {
	lister := &fakeLister{objects: map[string]int{"a": 1, "b": 1, "c": 1}}
	New(lister, newFakeWriter(), Config{Concurrency: 1}, nil).Run(context.Background(), []string{"a", "b", "c"})
	assert.Equal(t, int64(1), lister.peak.Load())
}

func TestScheduler_MatchesSequential(t *testing.T) {
	partitions := []string{"0000", "0001", "0002", "0003", "0004"}
	newLister := func() *fakeLister {
		return &fakeLister{
			objects: map[string]int{"0000": 3, "0002": 1, "0004": 7},
			errs:    map[string]error{"0003": provider.ErrTimeout},
		}
	}

	concurrent := New(newLister(), newFakeWriter(), Config{Concurrency: 3}, nil).Run(context.Background(), partitions)
	sequential := RunSequential(context.Background(), partitions, newLister(), newFakeWriter(), nil)

	require.Equal(t, len(sequential.Outcomes), len(concurrent.Outcomes))
	for i := range partitions {
		assert.Equal(t, sequential.Outcomes[i].Partition, concurrent.Outcomes[i].Partition)
		assert.Equal(t, sequential.Outcomes[i].Status, concurrent.Outcomes[i].Status)
		assert.Equal(t, sequential.Outcomes[i].Objects, concurrent.Outcomes[i].Objects)
	}
	assert.Equal(t, sequential.Succeeded, concurrent.Succeeded)
	assert.Equal(t, sequential.Empty, concurrent.Empty)
	assert.Equal(t, sequential.Failed, concurrent.Failed)
}

func TestScheduler_EmptyPartitionSet(t *testing.T) {
	report := New(&fakeLister{}, newFakeWriter(), DefaultConfig(), nil).Run(context.Background(), nil)
	assert.Zero(t, report.Total())
	assert.Zero(t, report.Failed)
}

// blockingLister holds every call until release is closed.
type blockingLister struct {
	started chan string
	release chan struct{}
	sawCtx  chan error
}

func (b *blockingLister) List(ctx context.Context, prefix string) (*listing.Result, error) {
	b.started <- prefix
	<-b.release
	b.sawCtx <- ctx.Err()
	return &listing.Result{Objects: []listing.ObjectRecord{{Key: prefix + "/k", Size: 1, Timestamp: "t"}}}, nil
}

func TestScheduler_CancelStopsDispatchAndDrains(t *testing.T) {
	const limit = 2
	partitions := []string{"0000", "0001", "0002", "0003", "0004", "0005"}
	lister := &blockingLister{
		started: make(chan string, len(partitions)),
		release: make(chan struct{}),
		sawCtx:  make(chan error, len(partitions)),
	}
	writer := newFakeWriter()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report)
	go func() {
		done <- New(lister, writer, Config{Concurrency: limit}, nil).Run(ctx, partitions)
	}()

	for range limit {
		<-lister.started
	}
	cancel()
	close(lister.release)

	var report *Report
	select {
	case report = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// In-flight jobs finished on an uncancelled context.
	for range limit {
		assert.NoError(t, <-lister.sawCtx)
	}
	assert.Equal(t, StatusSuccess, report.Outcomes[0].Status)
	assert.Equal(t, StatusSuccess, report.Outcomes[1].Status)
	for _, o := range report.Outcomes[limit:] {
		assert.Equal(t, StatusFailed, o.Status)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Equal(t, len(partitions)-limit, report.Undispatched)
	assert.Equal(t, len(partitions)-limit, report.Failed)
	assert.Len(t, writer.written, limit)
}

func TestRunSequential_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &fakeLister{objects: map[string]int{"0000": 1}}
	report := RunSequential(ctx, []string{"0000", "0001"}, lister, newFakeWriter(), nil)

	assert.Zero(t, lister.calls.Load())
	assert.Equal(t, 2, report.Undispatched)
	assert.Equal(t, []string{"0000", "0001"}, report.FailedPartitions())
}

type panickingLister struct{}

func (panickingLister) List(context.Context, string) (*listing.Result, error) {
	panic("lister exploded")
}

func TestProcess_PanicBecomesFailure(t *testing.T) {
	out := Process(context.Background(), panickingLister{}, newFakeWriter(), "00aa", nil)
	assert.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "lister exploded")
	assert.Equal(t, "00aa", out.Partition)
}

func TestProcess_WriteFailure(t *testing.T) {
	writer := newFakeWriter()
	writer.err = errors.New("disk full")
	lister := &fakeLister{objects: map[string]int{"0000": 1}}

	out := Process(context.Background(), lister, writer, "0000", nil)
	assert.Equal(t, StatusFailed, out.Status)
	assert.EqualError(t, out.Err, "disk full")
	assert.Zero(t, out.Objects)
}

// recordingObserver captures event order for one partition at a time.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
	report *Report
}

func (r *recordingObserver) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) JobStarted(p string)       { r.add("start " + p) }
func (r *recordingObserver) JobListed(p string, n int) { r.add(fmt.Sprintf("listed %s %d", p, n)) }
func (r *recordingObserver) JobFinished(o Outcome)     { r.add("finish " + o.Partition + " " + o.Status.String()) }
func (r *recordingObserver) RunFinished(rep *Report)   { r.report = rep }

func TestRunSequential_ObserverOrder(t *testing.T) {
	obs := &recordingObserver{}
	lister := &fakeLister{
		objects: map[string]int{"0000": 2},
		errs:    map[string]error{"0001": provider.ErrAccessDenied},
	}
	report := RunSequential(context.Background(), []string{"0000", "0001"}, lister, newFakeWriter(), MultiObserver{obs, NopObserver{}})

	assert.Equal(t, []string{
		"start 0000", "listed 0000 2", "finish 0000 success",
		"start 0001", "finish 0001 failed",
	}, obs.events)
	assert.Same(t, report, obs.report)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "empty", StatusEmptySkipped.String())
	assert.Equal(t, "failed", StatusFailed.String())

	text, err := StatusEmptySkipped.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "empty", string(text))
}

func TestReport_Outcome(t *testing.T) {
	r := newReport([]string{"0000", "0001"})
	r.Outcomes[1].Status = StatusSuccess
	r.Outcomes[1].Objects = 4
	r.tally()

	o, ok := r.Outcome("0001")
	require.True(t, ok)
	assert.Equal(t, 4, o.Objects)
	_, ok = r.Outcome("ffff")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Failed)
}

package fanout

import (
	"context"
	"sync"
	"time"
)

// DefaultConcurrency is the default number of partitions in flight.
const DefaultConcurrency = 32

// Config configures a Scheduler.
type Config struct {
	// Concurrency is the maximum number of partitions in flight.
	// Default: 32
	Concurrency int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{Concurrency: DefaultConcurrency}
}

// Scheduler processes partitions with bounded concurrency.
//
// The lister and writer are shared by all jobs and must be safe for
// concurrent use. Observers are called from job goroutines.
type Scheduler struct {
	lister   Lister
	writer   Writer
	observer Observer
	config   Config
}

// New creates a scheduler. obs may be nil.
func New(l Lister, w Writer, cfg Config, obs Observer) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Scheduler{lister: l, writer: w, observer: obs, config: cfg}
}

// Run processes partitions in order with at most Concurrency in flight and
// blocks until every dispatched job has finished.
//
// Each job holds its gate slot for both listing and writing. Cancelling ctx
// stops dispatch only: jobs already started run to completion on a context
// that ignores the cancellation, and partitions that were never dispatched
// are recorded as failed with ctx's error.
func (s *Scheduler) Run(ctx context.Context, partitions []string) *Report {
	start := time.Now()
	report := newReport(partitions)
	gate := NewGate(s.config.Concurrency)
	jobCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	dispatched := 0
	for i, p := range partitions {
		if err := gate.Acquire(ctx); err != nil {
			break
		}
		dispatched = i + 1

		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			defer gate.Release()
			report.Outcomes[i] = Process(jobCtx, s.lister, s.writer, p, s.observer)
		}(i, p)
	}
	wg.Wait()

	markUndispatched(report, dispatched, ctx.Err())
	report.tally()
	report.Duration = time.Since(start)
	s.observer.RunFinished(report)
	return report
}

// RunSequential processes partitions one at a time through the same
// pipeline as Scheduler.Run and yields the same outcomes. obs may be nil.
func RunSequential(ctx context.Context, partitions []string, l Lister, w Writer, obs Observer) *Report {
	if obs == nil {
		obs = NopObserver{}
	}
	start := time.Now()
	report := newReport(partitions)
	jobCtx := context.WithoutCancel(ctx)

	dispatched := 0
	for i, p := range partitions {
		if ctx.Err() != nil {
			break
		}
		dispatched = i + 1
		report.Outcomes[i] = Process(jobCtx, l, w, p, obs)
	}

	markUndispatched(report, dispatched, ctx.Err())
	report.tally()
	report.Duration = time.Since(start)
	obs.RunFinished(report)
	return report
}

func markUndispatched(r *Report, from int, err error) {
	if from >= len(r.Outcomes) {
		return
	}
	if err == nil {
		err = context.Canceled
	}
	for i := from; i < len(r.Outcomes); i++ {
		r.Outcomes[i].Status = StatusFailed
		r.Outcomes[i].Err = err
	}
	r.Undispatched = len(r.Outcomes) - from
}

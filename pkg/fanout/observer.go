package fanout

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/objmanifest/pkg/output"
	"github.com/3leaps/objmanifest/pkg/provider"
)

// Observer receives job lifecycle events.
//
// Under Scheduler.Run the Job* methods are called concurrently from job
// goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	JobStarted(partition string)
	JobListed(partition string, objects int)
	JobFinished(o Outcome)
	RunFinished(r *Report)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) JobStarted(string)     {}
func (NopObserver) JobListed(string, int) {}
func (NopObserver) JobFinished(Outcome)   {}
func (NopObserver) RunFinished(*Report)   {}

// MultiObserver fans events out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) JobStarted(partition string) {
	for _, o := range m {
		o.JobStarted(partition)
	}
}

func (m MultiObserver) JobListed(partition string, objects int) {
	for _, o := range m {
		o.JobListed(partition, objects)
	}
}

func (m MultiObserver) JobFinished(out Outcome) {
	for _, o := range m {
		o.JobFinished(out)
	}
}

func (m MultiObserver) RunFinished(r *Report) {
	for _, o := range m {
		o.RunFinished(r)
	}
}

// progress tracks finished jobs for periodic reporting.
type progress struct {
	total    int
	every    int64
	finished atomic.Int64
	objects  atomic.Int64
}

// finish records o and reports whether a progress update is due.
func (p *progress) finish(o Outcome) (int64, bool) {
	p.objects.Add(int64(o.Objects))
	n := p.finished.Add(1)
	return n, p.every > 0 && n%p.every == 0
}

// LogObserver logs job lifecycle events with zap.
type LogObserver struct {
	logger *zap.Logger
	progress
}

// NewLogObserver logs per-partition lines and a progress line every
// `every` finished partitions out of total. every <= 0 disables progress.
func NewLogObserver(logger *zap.Logger, total, every int) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger, progress: progress{total: total, every: int64(every)}}
}

func (l *LogObserver) JobStarted(partition string) {
	l.logger.Info("Prefix processing", zap.String("prefix", partition))
}

func (l *LogObserver) JobListed(partition string, objects int) {
	l.logger.Info("Prefix listed", zap.String("prefix", partition), zap.Int("objects", objects))
}

func (l *LogObserver) JobFinished(o Outcome) {
	switch o.Status {
	case StatusFailed:
		l.logger.Error("Prefix failed",
			zap.String("prefix", o.Partition),
			zap.String("code", provider.ErrorCode(o.Err)),
			zap.Error(o.Err),
		)
	case StatusEmptySkipped:
		l.logger.Debug("Prefix empty, skipped", zap.String("prefix", o.Partition))
	default:
		l.logger.Debug("Manifest written",
			zap.String("prefix", o.Partition),
			zap.Int("objects", o.Objects),
			zap.Duration("duration", o.Duration),
		)
	}

	if n, due := l.finish(o); due {
		l.logger.Info("Progress",
			zap.Int64("finished", n),
			zap.Int("total", l.total),
			zap.Int64("objects", l.objects.Load()),
		)
	}
}

func (l *LogObserver) RunFinished(r *Report) {
	fields := []zap.Field{
		zap.Int("partitions", r.Total()),
		zap.Int("succeeded", r.Succeeded),
		zap.Int("empty", r.Empty),
		zap.Int("failed", r.Failed),
		zap.Int64("objects", r.Objects),
		zap.Duration("duration", r.Duration),
	}
	if r.Undispatched > 0 {
		fields = append(fields, zap.Int("undispatched", r.Undispatched))
	}
	l.logger.Info("Run complete", fields...)
}

// EventObserver writes partition, error, progress and summary records to an
// output.Writer. Write failures are best effort and never fail a job.
type EventObserver struct {
	w        output.Writer
	pathFunc func(partition string) string
	progress
}

// NewEventObserver emits records to w. pathFunc, if non-nil, supplies the
// manifest path recorded for written partitions.
func NewEventObserver(w output.Writer, total, every int, pathFunc func(string) string) *EventObserver {
	return &EventObserver{w: w, pathFunc: pathFunc, progress: progress{total: total, every: int64(every)}}
}

// Start emits the initial progress record.
func (e *EventObserver) Start() {
	_ = e.w.WriteProgress(context.Background(), &output.ProgressRecord{
		Phase: output.PhaseStarting,
		Total: e.total,
	})
}

func (e *EventObserver) JobStarted(string)     {}
func (e *EventObserver) JobListed(string, int) {}

func (e *EventObserver) JobFinished(o Outcome) {
	ctx := context.Background()
	rec := &output.PartitionRecord{
		Partition:  o.Partition,
		Status:     o.Status.String(),
		Objects:    o.Objects,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Status == StatusSuccess && e.pathFunc != nil {
		rec.Manifest = e.pathFunc(o.Partition)
	}
	if o.Err != nil {
		rec.ErrorCode = provider.ErrorCode(o.Err)
		_ = e.w.WriteError(ctx, &output.ErrorRecord{
			Code:      rec.ErrorCode,
			Message:   o.Err.Error(),
			Partition: o.Partition,
		})
	}
	_ = e.w.WritePartition(ctx, rec)

	if n, due := e.finish(o); due {
		_ = e.w.WriteProgress(ctx, &output.ProgressRecord{
			Phase:    output.PhaseListing,
			Finished: n,
			Total:    e.total,
			Objects:  e.objects.Load(),
		})
	}
}

func (e *EventObserver) RunFinished(r *Report) {
	ctx := context.Background()
	_ = e.w.WriteProgress(ctx, &output.ProgressRecord{
		Phase:    output.PhaseComplete,
		Finished: int64(r.Total() - r.Undispatched),
		Total:    r.Total(),
		Objects:  r.Objects,
	})
	_ = e.w.WriteSummary(ctx, &output.SummaryRecord{
		Partitions:       r.Total(),
		Succeeded:        r.Succeeded,
		Empty:            r.Empty,
		Failed:           r.Failed,
		Objects:          r.Objects,
		Undispatched:     r.Undispatched,
		Duration:         r.Duration,
		DurationHuman:    r.Duration.Round(time.Millisecond).String(),
		FailedPartitions: r.FailedPartitions(),
	})
}

var (
	_ Observer = NopObserver{}
	_ Observer = MultiObserver(nil)
	_ Observer = (*LogObserver)(nil)
	_ Observer = (*EventObserver)(nil)
)

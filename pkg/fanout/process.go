// Package fanout runs the per-partition list-then-write pipeline over a set
// of partitions, either sequentially or with bounded concurrency.
//
// Every partition ends with exactly one Outcome. A failure in one partition
// never affects another, and no partition error escapes as a run error.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/objmanifest/pkg/listing"
)

// Lister lists one partition prefix.
//
// *listing.Client satisfies it.
type Lister interface {
	List(ctx context.Context, prefix string) (*listing.Result, error)
}

// Writer persists the listing of one partition. It reports written=false,
// with no error, when the result had no objects.
//
// *manifest.Writer satisfies it.
type Writer interface {
	Write(partition string, result *listing.Result) (written bool, err error)
}

// Status is the terminal state of a partition.
type Status int

const (
	// StatusFailed means listing or writing returned an error.
	StatusFailed Status = iota

	// StatusSuccess means a manifest was written.
	StatusSuccess

	// StatusEmptySkipped means the partition had no objects and nothing was written.
	StatusEmptySkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEmptySkipped:
		return "empty"
	default:
		return "failed"
	}
}

// MarshalText renders the status by name in JSON and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the result of processing one partition.
type Outcome struct {
	Partition string
	Status    Status

	// Objects is the number of objects written; zero unless Status is
	// StatusSuccess.
	Objects int

	// Err is set only when Status is StatusFailed.
	Err error

	Duration time.Duration
}

// Process lists partition and writes its manifest.
//
// It is the only per-partition pipeline; both the concurrent scheduler and
// the sequential runner call it. Process never panics: a panic in the lister
// or writer becomes a failed outcome. obs may be nil.
func Process(ctx context.Context, l Lister, w Writer, partition string, obs Observer) (out Outcome) {
	if obs == nil {
		obs = NopObserver{}
	}
	start := time.Now()
	out.Partition = partition

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Partition: partition, Status: StatusFailed, Err: fmt.Errorf("partition %s: panic: %v", partition, r)}
		}
		out.Duration = time.Since(start)
		obs.JobFinished(out)
	}()

	obs.JobStarted(partition)

	result, err := l.List(ctx, partition)
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	obs.JobListed(partition, len(result.Objects))

	written, err := w.Write(partition, result)
	switch {
	case err != nil:
		out.Status = StatusFailed
		out.Err = err
	case !written:
		out.Status = StatusEmptySkipped
	default:
		out.Status = StatusSuccess
		out.Objects = len(result.Objects)
	}
	return out
}

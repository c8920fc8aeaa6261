package fanout

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate admits at most Limit holders at a time.
//
// A holder calls Acquire before starting work and Release exactly once when
// it is done, on every exit path.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewGate creates a gate with the given limit. Limits below one become one.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Acquire blocks until a slot is free or ctx is done. It fails without taking
// a slot if ctx is already done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Limit returns the maximum number of concurrent holders.
func (g *Gate) Limit() int {
	return g.limit
}

// InFlight returns the current number of holders.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of simultaneous holders observed.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

// Package syncclient offers a blocking, call-at-a-time facade over the
// listing client for callers that do not manage contexts or goroutines.
package syncclient

import (
	"context"
	"errors"
	"sync"

	"github.com/3leaps/objmanifest/pkg/fanout"
	"github.com/3leaps/objmanifest/pkg/listing"
)

// ErrClosed is returned by List after Close.
var ErrClosed = errors.New("syncclient: adapter closed")

// BucketLister lists a prefix in an explicit bucket.
//
// *listing.Client satisfies it.
type BucketLister interface {
	ListBucket(ctx context.Context, bucket, prefix string) (*listing.Result, error)
}

type request struct {
	bucket string
	prefix string
	reply  chan response
}

type response struct {
	result *listing.Result
	err    error
}

// Adapter owns one goroutine that executes every listing call in turn.
//
// List blocks until its call has run. The adapter is meant for a single
// caller; concurrent callers are serialized by the request channel, so misuse
// degrades to sequential execution rather than racing.
type Adapter struct {
	lister BucketLister
	ctx    context.Context
	cancel context.CancelFunc

	requests chan request
	done     chan struct{}

	closeOnce sync.Once
}

// New starts the adapter's worker goroutine. Calls run under ctx; cancelling
// it makes pending and later calls fail with the context error.
func New(ctx context.Context, l BucketLister) *Adapter {
	ctx, cancel := context.WithCancel(ctx)
	a := &Adapter{
		lister:   l,
		ctx:      ctx,
		cancel:   cancel,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Adapter) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case req := <-a.requests:
			res, err := a.lister.ListBucket(a.ctx, req.bucket, req.prefix)
			req.reply <- response{result: res, err: err}
		}
	}
}

// List runs one listing on the worker goroutine and waits for its result.
func (a *Adapter) List(bucket, prefix string) (*listing.Result, error) {
	req := request{bucket: bucket, prefix: prefix, reply: make(chan response, 1)}
	select {
	case a.requests <- req:
	case <-a.done:
		return nil, ErrClosed
	}
	resp := <-req.reply
	return resp.result, resp.err
}

// Close stops the worker goroutine and waits for it to exit. An in-progress
// call is cancelled. Close is idempotent.
func (a *Adapter) Close() error {
	a.closeOnce.Do(a.cancel)
	<-a.done
	return nil
}

// Bind returns a fanout.Lister that lists partitions of bucket through the
// adapter, so the sequential runner shares the fan-out pipeline.
func (a *Adapter) Bind(bucket string) fanout.Lister {
	return boundLister{a: a, bucket: bucket}
}

type boundLister struct {
	a      *Adapter
	bucket string
}

// List ignores ctx; the adapter's own context governs the call.
func (b boundLister) List(_ context.Context, prefix string) (*listing.Result, error) {
	return b.a.List(b.bucket, prefix)
}

// File: protocol/future.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-assignment result of an asynchronous frame write.

package protocol

import (
	"context"
	"sync"

	"github.com/momentics/wsengine/api"
)

// Future resolves once with the written frame or an error.
type Future struct {
	once  sync.Once
	done  chan struct{}
	frame *Frame
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// FailedFuture returns a future already resolved with err.
func FailedFuture(err error) *Future {
	f := newFuture()
	f.fail(err)
	return f
}

func (f *Future) complete(fr *Frame) {
	f.once.Do(func() {
		f.frame = fr
		close(f.done)
	})
}

func (f *Future) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Get waits for the result or for ctx to end.
func (f *Future) Get(ctx context.Context) (*Frame, error) {
	select {
	case <-f.done:
		return f.frame, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the failure, or nil if the write succeeded or is pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// writeCompletion adapts a transport completion to a future and an
// optional frame-level callback.
type writeCompletion struct {
	future *Future
	frame  *Frame
	next   api.CompletionHandler
}

func (w *writeCompletion) Completed(n int) {
	if w.next != nil {
		w.next.Completed(n)
	}
	w.future.complete(w.frame)
}

func (w *writeCompletion) Failed(err error) {
	if w.next != nil {
		w.next.Failed(err)
	}
	w.future.fail(err)
}

func (w *writeCompletion) Cancelled() {
	if w.next != nil {
		w.next.Cancelled()
	}
	w.future.fail(api.ErrWriteCancelled)
}

// completionFuncs is a CompletionHandler built from functions.
type completionFuncs struct {
	completed func(int)
	failed    func(error)
	cancelled func()
}

func (c completionFuncs) Completed(n int) {
	if c.completed != nil {
		c.completed(n)
	}
}

func (c completionFuncs) Failed(err error) {
	if c.failed != nil {
		c.failed(err)
	}
}

func (c completionFuncs) Cancelled() {
	if c.cancelled != nil {
		c.cancelled()
	}
}

// File: transport/queue.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded FIFO of serialized frames waiting for the socket.

package transport

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/wsengine/api"
)

// pending is one queued write and its completion.
type pending struct {
	data []byte
	h    api.CompletionHandler
}

// writeQueue holds at most limit writes. Producers block while it is full;
// the single consumer takes everything queued at once.
type writeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	limit  int
	closed bool
}

func newWriteQueue(limit int) *writeQueue {
	if limit <= 0 {
		limit = DefaultWriteQueueSize
	}
	w := &writeQueue{q: queue.New(), limit: limit}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// push appends p, waiting for space. It fails with api.ErrTransportClosed
// once the queue is closed and with ctx.Err() when ctx ends first.
func (w *writeQueue) push(ctx context.Context, p pending) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.closed && w.q.Length() >= w.limit && ctx.Err() == nil {
		w.cond.Wait()
	}
	if w.closed {
		return api.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.q.Add(p)
	w.cond.Broadcast()
	return nil
}

// drain waits for at least one write and removes every queued write.
// It reports false once the queue is closed.
func (w *writeQueue) drain() ([]pending, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.closed && w.q.Length() == 0 {
		w.cond.Wait()
	}
	if w.closed {
		return nil, false
	}
	out := make([]pending, w.q.Length())
	for i := range out {
		out[i] = w.q.Remove().(pending)
	}
	w.cond.Broadcast()
	return out, true
}

// close stops the queue and returns the writes that never reached the socket.
func (w *writeQueue) close() []pending {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	out := make([]pending, w.q.Length())
	for i := range out {
		out[i] = w.q.Remove().(pending)
	}
	w.cond.Broadcast()
	return out
}

// wake lets blocked producers re-check their context.
func (w *writeQueue) wake() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// length returns the number of queued writes.
func (w *writeQueue) length() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.q.Length()
}

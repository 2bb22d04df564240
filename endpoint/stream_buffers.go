// File: endpoint/stream_buffers.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Streaming buffer feeding reader and input-stream handlers.

package endpoint

import (
	"io"
	"sync"

	"github.com/eapache/queue"
)

// streamBuffer is an io.Reader over message fragments. The delivering
// goroutine appends without blocking; the handler goroutine reads.
type streamBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks *queue.Queue
	cur    []byte
	size   int
	max    int
	last   bool
	err    error
}

func newStreamBuffer(max int) *streamBuffer {
	b := &streamBuffer{chunks: queue.New(), max: max}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append queues one fragment. Exceeding the limit aborts the stream: the
// reader sees the returned *BufferOverflowError.
func (b *streamBuffer) Append(p []byte, last bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last || b.err != nil {
		return b.err
	}
	b.size += len(p)
	if b.max > 0 && b.size > b.max {
		b.err = &BufferOverflowError{Limit: b.max, Size: b.size}
		b.cond.Broadcast()
		return b.err
	}
	if len(p) > 0 {
		b.chunks.Add(append([]byte(nil), p...))
	}
	b.last = last
	b.cond.Broadcast()
	return nil
}

// Abort fails pending and future reads with err.
func (b *streamBuffer) Abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil && !b.last {
		b.err = err
		b.cond.Broadcast()
	}
}

// Read blocks until data, the end of the message, or an abort.
func (b *streamBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.cur) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		if b.chunks.Length() > 0 {
			b.cur = b.chunks.Remove().([]byte)
			continue
		}
		if b.last {
			return 0, io.EOF
		}
		b.cond.Wait()
	}
	n := copy(p, b.cur)
	b.cur = b.cur[n:]
	return n, nil
}

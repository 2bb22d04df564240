// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Once-only lifecycle signal for a session.

package session

import (
	"sync"
	"time"
)

// Lifecycle is closed exactly once when its session ends.
type Lifecycle struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed time.Time
}

// NewLifecycle returns an open lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Cancel ends the lifecycle and reports whether this call ended it.
func (l *Lifecycle) Cancel() bool {
	fired := false
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = time.Now()
		l.mu.Unlock()
		close(l.done)
		fired = true
	})
	return fired
}

// Done returns a channel closed upon cancellation.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// ClosedAt returns when the lifecycle ended, if it has.
func (l *Lifecycle) ClosedAt() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed, !l.closed.IsZero()
}

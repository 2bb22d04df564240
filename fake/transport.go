// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the transport writer.

package fake

import (
	"sync"

	"github.com/momentics/wsengine/api"
)

// Transport is a recording api.Writer. Writes complete synchronously
// unless the transport is put on hold.
type Transport struct {
	mu         sync.Mutex
	sendBuffer [][]byte
	closed     bool
	closeCalls int
	sendError  error
	cancel     bool
	hold       bool
	pending    []pendingWrite
	closeError error
}

type pendingWrite struct {
	data []byte
	h    api.CompletionHandler
}

// NewTransport creates a new fake transport with default settings.
func NewTransport() *Transport {
	return &Transport{sendBuffer: make([][]byte, 0)}
}

// Write implements api.Writer.Write.
func (t *Transport) Write(p []byte, h api.CompletionHandler) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		h.Cancelled()
		return
	}
	if err := t.sendError; err != nil {
		t.mu.Unlock()
		h.Failed(err)
		return
	}
	if t.cancel {
		t.mu.Unlock()
		h.Cancelled()
		return
	}
	bufCopy := make([]byte, len(p))
	copy(bufCopy, p)
	if t.hold {
		t.pending = append(t.pending, pendingWrite{data: bufCopy, h: h})
		t.mu.Unlock()
		return
	}
	t.sendBuffer = append(t.sendBuffer, bufCopy)
	t.mu.Unlock()
	h.Completed(len(p))
}

// Close implements api.Writer.Close. Held writes are cancelled.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closeCalls++
	if t.closeError != nil {
		err := t.closeError
		t.mu.Unlock()
		return err
	}
	t.closed = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, w := range pending {
		w.h.Cancelled()
	}
	return nil
}

// SetSendError configures the transport to fail every write with err.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendError = err
}

// SetCancel configures the transport to cancel every write.
func (t *Transport) SetCancel(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = v
}

// SetCloseError configures the transport to return an error on Close.
func (t *Transport) SetCloseError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeError = err
}

// Hold keeps subsequent writes pending until Release.
func (t *Transport) Hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hold = true
}

// Release completes all held writes in order and stops holding.
func (t *Transport) Release() {
	t.mu.Lock()
	t.hold = false
	pending := t.pending
	t.pending = nil
	for _, w := range pending {
		t.sendBuffer = append(t.sendBuffer, w.data)
	}
	t.mu.Unlock()
	for _, w := range pending {
		w.h.Completed(len(w.data))
	}
}

// GetSentData returns every completed write.
func (t *Transport) GetSentData() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	sent := make([][]byte, len(t.sendBuffer))
	copy(sent, t.sendBuffer)
	return sent
}

// Bytes returns the completed writes concatenated in order.
func (t *Transport) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []byte
	for _, b := range t.sendBuffer {
		out = append(out, b...)
	}
	return out
}

// ClearSentData clears the internal send buffer.
func (t *Transport) ClearSentData() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendBuffer = t.sendBuffer[:0]
}

// Closed reports whether Close succeeded.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// CloseCalls returns how many times Close was called.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

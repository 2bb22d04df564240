// File: endpoint/buffers.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reassembly buffers for whole-message handlers receiving fragments.

package endpoint

import "strings"

// TextBuffer accumulates text fragments up to a byte limit.
type TextBuffer struct {
	b   strings.Builder
	max int
}

// Reset empties the buffer and sets its limit; max <= 0 means unbounded.
func (t *TextBuffer) Reset(max int) {
	t.b = strings.Builder{}
	t.max = max
}

// Append adds a fragment. On overflow the buffer is emptied and a
// *BufferOverflowError is returned.
func (t *TextBuffer) Append(s string) error {
	size := t.b.Len() + len(s)
	if t.max > 0 && size > t.max {
		t.b = strings.Builder{}
		return &BufferOverflowError{Limit: t.max, Size: size}
	}
	t.b.WriteString(s)
	return nil
}

// Content returns the accumulated text.
func (t *TextBuffer) Content() string { return t.b.String() }

// Len returns the accumulated size in bytes.
func (t *TextBuffer) Len() int { return t.b.Len() }

// BinaryBuffer accumulates binary fragments up to a byte limit.
type BinaryBuffer struct {
	buf []byte
	max int
}

// Reset drops the content and sets the limit; max <= 0 means unbounded.
// A slice returned by Content stays valid after Reset.
func (b *BinaryBuffer) Reset(max int) {
	b.buf = nil
	b.max = max
}

// Append adds a fragment. On overflow the buffer is emptied and a
// *BufferOverflowError is returned.
func (b *BinaryBuffer) Append(p []byte) error {
	size := len(b.buf) + len(p)
	if b.max > 0 && size > b.max {
		b.buf = nil
		return &BufferOverflowError{Limit: b.max, Size: size}
	}
	b.buf = append(b.buf, p...)
	return nil
}

// Content returns the accumulated bytes.
func (b *BinaryBuffer) Content() []byte { return b.buf }

// Len returns the accumulated size in bytes.
func (b *BinaryBuffer) Len() int { return len(b.buf) }

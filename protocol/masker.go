// File: protocol/masker.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// XOR masking over a 4-byte cyclic key.

package protocol

import "encoding/binary"

// Masker applies the RFC 6455 masking transform. The key offset is kept
// between calls so a payload may be masked or unmasked in several chunks.
// A Masker without a key passes bytes through unchanged.
type Masker struct {
	key    [MaskSize]byte
	hasKey bool
	index  int
	src    []byte
}

// NewMasker returns a masker for the given 32-bit key.
func NewMasker(key uint32) *Masker {
	m := &Masker{hasKey: true}
	binary.BigEndian.PutUint32(m.key[:], key)
	return m
}

// NewStreamMasker returns a keyless masker reading from src.
// The key may be read later from the stream with ReadKey.
func NewStreamMasker(src []byte) *Masker {
	return &Masker{src: src}
}

// Key returns the key bytes in wire order.
func (m *Masker) Key() [MaskSize]byte { return m.key }

// SetSource replaces the streaming source without touching the key offset.
func (m *Masker) SetSource(src []byte) { m.src = src }

// Source returns the unread part of the streaming source.
func (m *Masker) Source() []byte { return m.src }

// ReadKey consumes 4 bytes from the source as the masking key.
// It reports false if fewer than 4 bytes are available.
func (m *Masker) ReadKey() bool {
	if len(m.src) < MaskSize {
		return false
	}
	copy(m.key[:], m.src[:MaskSize])
	m.src = m.src[MaskSize:]
	m.hasKey = true
	m.index = 0
	return true
}

// Mask XORs length bytes of src into dest starting at destOffset.
func (m *Masker) Mask(dest []byte, destOffset int, src []byte, length int) {
	if !m.hasKey {
		copy(dest[destOffset:destOffset+length], src[:length])
		return
	}
	for i := 0; i < length; i++ {
		dest[destOffset+i] = src[i] ^ m.key[m.index&3]
		m.index++
	}
}

// Unmask consumes n bytes from the source and returns them unmasked in a
// freshly allocated slice. It returns nil if fewer than n bytes are buffered.
func (m *Masker) Unmask(n int) []byte {
	if n > len(m.src) {
		return nil
	}
	out := make([]byte, n)
	m.Mask(out, 0, m.src, n)
	m.src = m.src[n:]
	return out
}

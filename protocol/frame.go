// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Immutable representation of one RFC 6455 wire frame.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Frame holds the fields of one wire frame. It is immutable once built;
// use NewFrameBuilder or Frame.ToBuilder to derive modified copies.
type Frame struct {
	fin, rsv1, rsv2, rsv3 bool
	mask                  bool
	opcode                byte
	payloadLength         int64
	maskingKey            uint32
	payload               []byte
}

func (f *Frame) IsFin() bool           { return f.fin }
func (f *Frame) IsRsv1() bool          { return f.rsv1 }
func (f *Frame) IsRsv2() bool          { return f.rsv2 }
func (f *Frame) IsRsv3() bool          { return f.rsv3 }
func (f *Frame) IsMask() bool          { return f.mask }
func (f *Frame) Opcode() byte          { return f.opcode }
func (f *Frame) PayloadLength() int64  { return f.payloadLength }
func (f *Frame) MaskingKey() uint32    { return f.maskingKey }
func (f *Frame) IsControlFrame() bool  { return IsControl(f.opcode) }
func (f *Frame) hasRsv() bool          { return f.rsv1 || f.rsv2 || f.rsv3 }

// Payload returns the first PayloadLength bytes of the payload data.
func (f *Frame) Payload() []byte {
	if int64(len(f.payload)) == f.payloadLength {
		return f.payload
	}
	return f.payload[:f.payloadLength]
}

// ToBuilder returns a builder pre-populated with the fields of f.
func (f *Frame) ToBuilder() *FrameBuilder {
	b := &FrameBuilder{f: *f}
	b.lengthSet = true
	return b
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{fin=%t, rsv1=%t, rsv2=%t, rsv3=%t, mask=%t, opcode=%#x, payloadLength=%d, maskingKey=%#08x}",
		f.fin, f.rsv1, f.rsv2, f.rsv3, f.mask, f.opcode, f.payloadLength, f.maskingKey)
}

// FrameBuilder assembles a Frame. The masking key defaults to a
// cryptographically random 32-bit value.
type FrameBuilder struct {
	f         Frame
	lengthSet bool
}

// NewFrameBuilder starts a new frame with a random masking key.
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{f: Frame{maskingKey: randomMaskingKey()}}
}

func (b *FrameBuilder) Fin(v bool) *FrameBuilder        { b.f.fin = v; return b }
func (b *FrameBuilder) Rsv1(v bool) *FrameBuilder       { b.f.rsv1 = v; return b }
func (b *FrameBuilder) Rsv2(v bool) *FrameBuilder       { b.f.rsv2 = v; return b }
func (b *FrameBuilder) Rsv3(v bool) *FrameBuilder       { b.f.rsv3 = v; return b }
func (b *FrameBuilder) Mask(v bool) *FrameBuilder       { b.f.mask = v; return b }
func (b *FrameBuilder) Opcode(op byte) *FrameBuilder    { b.f.opcode = op & OpcodeMask; return b }
func (b *FrameBuilder) MaskingKey(k uint32) *FrameBuilder { b.f.maskingKey = k; return b }

// PayloadLength overrides the length derived from PayloadData.
func (b *FrameBuilder) PayloadLength(n int64) *FrameBuilder {
	b.f.payloadLength = n
	b.lengthSet = true
	return b
}

// PayloadData sets the payload; the slice is retained, not copied.
func (b *FrameBuilder) PayloadData(p []byte) *FrameBuilder {
	b.f.payload = p
	if !b.lengthSet {
		b.f.payloadLength = int64(len(p))
	}
	return b
}

// Build validates payloadLength <= len(payload) and returns the frame.
func (b *FrameBuilder) Build() (*Frame, error) {
	if b.f.payloadLength < 0 || b.f.payloadLength > int64(len(b.f.payload)) {
		return nil, fmt.Errorf("protocol: payload length %d exceeds payload data %d", b.f.payloadLength, len(b.f.payload))
	}
	out := b.f
	return &out, nil
}

// MustBuild is Build for frames whose payload length is derived from data.
func (b *FrameBuilder) MustBuild() *Frame {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

func randomMaskingKey() uint32 {
	var k [4]byte
	if _, err := rand.Read(k[:]); err != nil {
		panic("protocol: crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint32(k[:])
}

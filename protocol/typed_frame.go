// File: protocol/typed_frame.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed views of validated frames, produced by Handler.Process.

package protocol

import (
	"fmt"

	"github.com/momentics/wsengine/api"
)

// TypedFrame is one of *TextFrame, *BinaryFrame, *CloseFrame, *PingFrame
// or *PongFrame. Callers dispatch on it with a type switch.
type TypedFrame interface {
	Raw() *Frame
	typed()
}

type typedBase struct {
	frame *Frame
}

func (b typedBase) Raw() *Frame { return b.frame }
func (typedBase) typed()        {}

// TextFrame is a decoded text fragment or whole message.
type TextFrame struct {
	typedBase
	Text         string
	Continuation bool
	Last         bool
}

// BinaryFrame is a binary fragment or whole message.
type BinaryFrame struct {
	typedBase
	Data         []byte
	Continuation bool
	Last         bool
}

// CloseFrame carries the peer's close reason.
type CloseFrame struct {
	typedBase
	Reason CloseReason
}

// PingFrame carries ping application data.
type PingFrame struct {
	typedBase
}

// PongFrame carries pong application data.
type PongFrame struct {
	typedBase
}

func (p *PingFrame) Data() []byte { return p.frame.Payload() }
func (p *PongFrame) Data() []byte { return p.frame.Payload() }

// IsWhole reports whether the text frame is a complete single-frame message.
func (t *TextFrame) IsWhole() bool { return !t.Continuation && t.Last }

// IsWhole reports whether the binary frame is a complete single-frame message.
func (b *BinaryFrame) IsWhole() bool { return !b.Continuation && b.Last }

// NewTextFrame builds an outgoing text frame.
func NewTextFrame(text string, continuation, last bool) *Frame {
	op := OpcodeText
	if continuation {
		op = OpcodeContinuation
	}
	return NewFrameBuilder().Opcode(op).Fin(last).PayloadData([]byte(text)).MustBuild()
}

// NewBinaryFrame builds an outgoing binary frame.
func NewBinaryFrame(data []byte, continuation, last bool) *Frame {
	op := OpcodeBinary
	if continuation {
		op = OpcodeContinuation
	}
	return NewFrameBuilder().Opcode(op).Fin(last).PayloadData(data).MustBuild()
}

// NewPingFrame builds a ping carrying at most 125 bytes of data.
func NewPingFrame(data []byte) (*Frame, error) {
	return newControlFrame(OpcodePing, data)
}

// NewPongFrame builds a pong carrying at most 125 bytes of data.
func NewPongFrame(data []byte) (*Frame, error) {
	return newControlFrame(OpcodePong, data)
}

// NewCloseFrame builds a close frame for reason.
func NewCloseFrame(reason CloseReason) (*Frame, error) {
	p, err := encodeClosePayload(reason)
	if err != nil {
		return nil, err
	}
	return newControlFrame(OpcodeClose, p)
}

func newControlFrame(op byte, data []byte) (*Frame, error) {
	if len(data) > MaxControlPayloadLen {
		return nil, fmt.Errorf("%w: control frame payload of %d bytes exceeds %d", api.ErrInvalidArgument, len(data), MaxControlPayloadLen)
	}
	return NewFrameBuilder().Opcode(op).Fin(true).PayloadData(data).Build()
}

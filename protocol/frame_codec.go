// File: protocol/frame_codec.go
// Package protocol implements the incremental frame codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Serializes frames through the outgoing extension chain and parses frames
// out of partial reads without losing state between calls.

package protocol

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFramePayload bounds the declared length of a single frame.
const DefaultMaxFramePayload = 16 << 20 // 16 MiB

const (
	stepHeader = iota
	stepLength
	stepMask
	stepPayload
)

// parsingState is the scratch state of one connection's parser.
type parsingState struct {
	step       int
	opcode     byte // low 7 bits of the first byte: rsv bits and opcode
	lengthCode byte
	length     int64
	fin        bool
	control    bool
	masked     bool
	masker     *Masker
}

func (s *parsingState) recycle() {
	*s = parsingState{}
}

// Codec is the per-connection frame serializer and parser. Unframe must be
// called from one goroutine at a time; Frame is serialized by the caller.
type Codec struct {
	mask       bool
	maxPayload int64

	// outgoing holds the extensions in reverse negotiation order.
	outgoing []Extension
	extCtx   *ExtensionContext

	outFragmentedType byte
	state             parsingState
}

// NewCodec returns a codec. mask enables client-side masking of outgoing
// frames; maxPayload <= 0 selects DefaultMaxFramePayload.
func NewCodec(mask bool, maxPayload int64) *Codec {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxFramePayload
	}
	return &Codec{mask: mask, maxPayload: maxPayload, extCtx: NewExtensionContext()}
}

// SetExtensions installs the negotiated extensions, given in negotiation order.
func (c *Codec) SetExtensions(exts []Extension) {
	c.outgoing = make([]Extension, len(exts))
	for i, e := range exts {
		c.outgoing[len(exts)-1-i] = e
	}
}

// Extensions returns the negotiated extensions in negotiation order.
func (c *Codec) Extensions() []Extension {
	out := make([]Extension, len(c.outgoing))
	for i, e := range c.outgoing {
		out[len(c.outgoing)-1-i] = e
	}
	return out
}

// Fragmenting reports whether an outbound fragmented message is open.
func (c *Codec) Fragmenting() bool { return c.outFragmentedType != 0 }

// HasExtensions reports whether any extension is active.
func (c *Codec) HasExtensions() bool { return len(c.outgoing) > 0 }

// ExtensionContext returns the per-connection extension state.
func (c *Codec) ExtensionContext() *ExtensionContext { return c.extCtx }

// Frame runs the outgoing extension chain and serializes the result,
// tracking outbound fragmentation.
func (c *Codec) Frame(f *Frame) ([]byte, error) {
	for _, ext := range c.outgoing {
		var err error
		if f, err = ext.ProcessOutgoing(c.extCtx, f); err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
	}
	op, err := c.checkForLastFrame(f)
	if err != nil {
		return nil, err
	}
	return encode(f, op, c.mask), nil
}

// checkForLastFrame computes the first header byte without rsv bits.
func (c *Codec) checkForLastFrame(f *Frame) (byte, error) {
	op := f.opcode
	if IsControl(op) {
		return op | FinBit, nil
	}
	if c.outFragmentedType != 0 {
		if op != OpcodeContinuation {
			return 0, ErrSendOutOfOrder
		}
		if f.fin {
			c.outFragmentedType = 0
			return FinBit, nil
		}
		return OpcodeContinuation, nil
	}
	if op == OpcodeContinuation {
		return 0, fmt.Errorf("continuation frame sent without a fragmented message in progress")
	}
	if !f.fin {
		c.outFragmentedType = op
		return op, nil
	}
	return op | FinBit, nil
}

// EncodeFrame serializes f exactly as given, bypassing extensions and
// fragmentation tracking. It is used for frames shared between connections.
func EncodeFrame(f *Frame, mask bool) []byte {
	op := f.opcode
	if f.fin {
		op |= FinBit
	}
	return encode(f, op, mask)
}

func encode(f *Frame, op byte, mask bool) []byte {
	if f.rsv1 {
		op |= Rsv1Bit
	}
	if f.rsv2 {
		op |= Rsv2Bit
	}
	if f.rsv3 {
		op |= Rsv3Bit
	}
	payload := f.Payload()
	n := len(payload)
	lengthBytes := encodeLength(int64(n))
	start := 1 + len(lengthBytes)
	if mask {
		start += MaskSize
	}
	packet := make([]byte, start+n)
	packet[0] = op
	copy(packet[1:], lengthBytes)
	if mask {
		m := NewMasker(f.maskingKey)
		packet[1] |= MaskBit
		key := m.Key()
		copy(packet[start-MaskSize:start], key[:])
		m.Mask(packet, start, payload, n)
	} else {
		copy(packet[start:], payload)
	}
	return packet
}

// encodeLength returns the 1, 3 or 9 byte length field.
func encodeLength(n int64) []byte {
	switch {
	case n <= MaxControlPayloadLen:
		return []byte{byte(n)}
	case n <= 0xFFFF:
		b := []byte{payloadLen16, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := make([]byte, 9)
		b[0] = payloadLen64
		binary.BigEndian.PutUint64(b[1:], uint64(n))
		return b
	}
}

// Unframe parses at most one frame from src. It returns the number of
// bytes consumed; the caller must drop them and pass the rest together
// with newly read bytes on the next call. A nil frame with a nil error
// means more data is needed. Any error resets the parser and is fatal
// for the connection.
func (c *Codec) Unframe(src []byte) (*Frame, int, error) {
	f, n, err := c.unframe(src)
	if err != nil {
		c.state.recycle()
		return nil, n, err
	}
	return f, n, nil
}

func (c *Codec) unframe(src []byte) (*Frame, int, error) {
	s := &c.state
	pos := 0
	for {
		switch s.step {
		case stepHeader:
			if len(src)-pos < 2 {
				return nil, pos, nil
			}
			b0, b1 := src[pos], src[pos+1]
			pos += 2
			s.fin = b0&FinBit != 0
			s.control = IsControl(b0)
			s.opcode = b0 &^ FinBit
			if !s.fin && s.control {
				return nil, pos, NewProtocolError("Fragmented control frame")
			}
			s.masked = b1&MaskBit != 0
			s.lengthCode = b1 & LenMask
			s.masker = NewStreamMasker(nil)
			s.step = stepLength
		case stepLength:
			if s.lengthCode <= MaxControlPayloadLen {
				s.length = int64(s.lengthCode)
			} else {
				if s.control {
					return nil, pos, NewProtocolError("Control frame payloads must be no greater than 125 bytes")
				}
				n := 2
				if s.lengthCode == payloadLen64 {
					n = 8
				}
				if len(src)-pos < n {
					return nil, pos, nil
				}
				raw := src[pos : pos+n]
				pos += n
				if n == 2 {
					s.length = int64(binary.BigEndian.Uint16(raw))
				} else {
					u := binary.BigEndian.Uint64(raw)
					if u>>63 != 0 {
						return nil, pos, NewProtocolError("Payload length must not have the most significant bit set")
					}
					s.length = int64(u)
				}
			}
			if s.length > c.maxPayload {
				return nil, pos, newProtocolErrorCode(CloseTooBig,
					fmt.Sprintf("Frame payload of %d bytes exceeds the limit of %d bytes", s.length, c.maxPayload))
			}
			s.step = stepMask
		case stepMask:
			if s.masked {
				if len(src)-pos < MaskSize {
					return nil, pos, nil
				}
				s.masker.SetSource(src[pos:])
				s.masker.ReadKey()
				pos += MaskSize
			}
			s.step = stepPayload
		case stepPayload:
			if int64(len(src)-pos) < s.length {
				return nil, pos, nil
			}
			s.masker.SetSource(src[pos:])
			data := s.masker.Unmask(int(s.length))
			pos += int(s.length)
			b := &FrameBuilder{}
			b.Fin(s.fin).
				Rsv1(s.opcode&Rsv1Bit != 0).
				Rsv2(s.opcode&Rsv2Bit != 0).
				Rsv3(s.opcode&Rsv3Bit != 0).
				Opcode(s.opcode).
				Mask(s.masked).
				PayloadData(data)
			if s.masked {
				k := s.masker.Key()
				b.MaskingKey(binary.BigEndian.Uint32(k[:]))
			}
			f, err := b.Build()
			if err != nil {
				return nil, pos, NewProtocolError(err.Error())
			}
			s.recycle()
			return f, pos, nil
		default:
			return nil, pos, fmt.Errorf("unexpected parser state %d", s.step)
		}
	}
}

// ProcessIncoming runs the incoming extension chain in negotiation order.
func (c *Codec) ProcessIncoming(f *Frame) (*Frame, error) {
	for i := len(c.outgoing) - 1; i >= 0; i-- {
		ext := c.outgoing[i]
		var err error
		if f, err = ext.ProcessIncoming(c.extCtx, f); err != nil {
			if _, ok := AsFatal(err); ok {
				return nil, err
			}
			return nil, NewProtocolError(fmt.Sprintf("extension %s: %v", ext.Name(), err))
		}
	}
	return f, nil
}

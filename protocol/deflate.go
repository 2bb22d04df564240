// File: protocol/deflate.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// permessage-deflate (RFC 7692) extension without context takeover,
// built on gobwas/ws/wsflate.

package protocol

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/gobwas/ws/wsflate"
)

// DeflateExtensionName is the negotiated extension token.
const DeflateExtensionName = wsflate.ExtensionName

const deflateInKey = "permessage-deflate.in"

// Deflate compresses whole outgoing data messages and inflates incoming
// messages that carry RSV1. Fragmented outgoing messages are sent as is.
type Deflate struct {
	level          int
	maxMessageSize int64
}

// NewDeflate returns the extension. maxMessageSize bounds the inflated
// size of one incoming message; <= 0 selects DefaultMaxFramePayload.
func NewDeflate(level int, maxMessageSize int64) *Deflate {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxFramePayload
	}
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	return &Deflate{level: level, maxMessageSize: maxMessageSize}
}

func (d *Deflate) Name() string { return DeflateExtensionName }

type deflateInState struct {
	compressed bool
	buf        bytes.Buffer
}

func (d *Deflate) ProcessOutgoing(_ *ExtensionContext, f *Frame) (*Frame, error) {
	if f.IsControlFrame() || f.opcode == OpcodeContinuation || !f.fin {
		return f, nil
	}
	var out bytes.Buffer
	w := wsflate.NewWriter(&out, func(w io.Writer) wsflate.Compressor {
		fw, _ := flate.NewWriter(w, d.level)
		return fw
	})
	if _, err := w.Write(f.Payload()); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	p := out.Bytes()
	return f.ToBuilder().Rsv1(true).PayloadData(p).PayloadLength(int64(len(p))).Build()
}

func (d *Deflate) ProcessIncoming(ctx *ExtensionContext, f *Frame) (*Frame, error) {
	if f.IsControlFrame() {
		if f.rsv1 {
			return nil, NewProtocolError("RSV1 set on a control frame")
		}
		return f, nil
	}
	st := d.inState(ctx)
	if f.opcode != OpcodeContinuation {
		st.compressed = f.rsv1
		st.buf.Reset()
	} else if f.rsv1 {
		return nil, NewProtocolError("RSV1 set on a continuation frame")
	}
	if !st.compressed {
		return f, nil
	}
	if int64(st.buf.Len())+f.payloadLength > d.maxMessageSize {
		st.buf.Reset()
		return nil, newProtocolErrorCode(CloseTooBig, "Compressed message exceeds the size limit")
	}
	st.buf.Write(f.Payload())
	if !f.fin {
		return f.ToBuilder().Rsv1(false).PayloadData(nil).PayloadLength(0).Build()
	}

	r := wsflate.NewReader(bytes.NewReader(st.buf.Bytes()), func(r io.Reader) wsflate.Decompressor {
		return flate.NewReader(r)
	})
	data, err := io.ReadAll(io.LimitReader(r, d.maxMessageSize+1))
	st.buf.Reset()
	st.compressed = false
	if err != nil {
		return nil, newProtocolErrorCode(CloseNotConsistent, fmt.Sprintf("Inflating message failed: %v", err))
	}
	if int64(len(data)) > d.maxMessageSize {
		return nil, newProtocolErrorCode(CloseTooBig, "Inflated message exceeds the size limit")
	}
	return f.ToBuilder().Rsv1(false).PayloadData(data).PayloadLength(int64(len(data))).Build()
}

func (d *Deflate) inState(ctx *ExtensionContext) *deflateInState {
	if v, ok := ctx.Get(deflateInKey); ok {
		return v.(*deflateInState)
	}
	st := &deflateInState{}
	ctx.Set(deflateInKey, st)
	return st
}

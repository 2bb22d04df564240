// File: protocol/handler.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler owns one connection's framing state: inbound fragmentation
// validation, typed frame construction, and the outbound send path.

package protocol

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/wsengine/api"
)

// Handler is the per-connection protocol state machine. Unframe and
// Process must be called from a single goroutine; the send methods are
// safe for concurrent use.
type Handler struct {
	role  api.Role
	codec *Codec

	// wmu serializes outbound framing and submission to the writer.
	wmu        sync.Mutex
	writer     atomic.Pointer[writerRef]
	streamType byte
	closeSent  bool // guarded by wmu

	inFragmentedType   byte
	processingFragment bool
	text               utf8Decoder

	onClosedCalled atomic.Bool
	closeListener  func(CloseReason)
}

type writerRef struct{ w api.Writer }

// ErrCloseSent is returned for frames submitted after the close frame.
var ErrCloseSent = fmt.Errorf("%w: close frame already sent", api.ErrSessionClosed)

// NewHandler returns a handler for the given role. Client handlers mask
// every outgoing frame. maxFramePayload <= 0 selects the default limit.
func NewHandler(role api.Role, maxFramePayload int64) *Handler {
	return &Handler{
		role:  role,
		codec: NewCodec(role == api.RoleClient, maxFramePayload),
	}
}

// Role returns the endpoint role of this handler.
func (h *Handler) Role() api.Role { return h.role }

// SetWriter attaches the transport writer.
func (h *Handler) SetWriter(w api.Writer) {
	h.writer.Store(&writerRef{w: w})
}

func (h *Handler) loadWriter() api.Writer {
	if r := h.writer.Load(); r != nil {
		return r.w
	}
	return nil
}

// SetExtensions installs negotiated extensions in negotiation order.
// It must be called before any traffic.
func (h *Handler) SetExtensions(exts []Extension) { h.codec.SetExtensions(exts) }

// Extensions returns the negotiated extensions.
func (h *Handler) Extensions() []Extension { return h.codec.Extensions() }

// HasExtensions reports whether frames are transformed by extensions.
func (h *Handler) HasExtensions() bool { return h.codec.HasExtensions() }

// Masks reports whether outgoing frames are masked.
func (h *Handler) Masks() bool { return h.codec.mask }

// SetCloseListener registers the close notification. It fires at most
// once per handler and must be set before any traffic.
func (h *Handler) SetCloseListener(fn func(CloseReason)) { h.closeListener = fn }

// Unframe parses one frame from src and runs the incoming extension chain.
// See Codec.Unframe for the consumption contract.
func (h *Handler) Unframe(src []byte) (*Frame, int, error) {
	f, n, err := h.codec.Unframe(src)
	if err != nil || f == nil {
		return nil, n, err
	}
	f, err = h.codec.ProcessIncoming(f)
	return f, n, err
}

// Process validates f against the fragmentation rules and converts it
// into a typed frame. Any error is fatal for the connection.
func (h *Handler) Process(f *Frame) (TypedFrame, error) {
	if f.hasRsv() {
		return nil, NewProtocolError("RSV bit(s) incorrectly set")
	}
	op := f.opcode
	if !isKnownOpcode(op) {
		return nil, NewProtocolError(fmt.Sprintf("Unknown opcode %#x", op))
	}
	if !IsControl(op) {
		continuation := op == OpcodeContinuation
		if continuation && !h.processingFragment {
			return nil, NewProtocolError("End fragment sent, but wasn't processing any previous fragments")
		}
		if h.processingFragment && !continuation {
			return nil, NewProtocolError("Fragment sent but opcode was not 0")
		}
		if !f.fin && !continuation {
			h.processingFragment = true
			h.inFragmentedType = op
		}
	}

	tf, err := h.wrap(f)
	if err != nil {
		h.resetInbound()
		return nil, err
	}
	if !IsControl(op) && f.fin {
		h.inFragmentedType = 0
		h.processingFragment = false
	}
	return tf, nil
}

func (h *Handler) wrap(f *Frame) (TypedFrame, error) {
	kind := f.opcode
	continuation := kind == OpcodeContinuation
	if continuation {
		kind = h.inFragmentedType
	}
	base := typedBase{frame: f}
	switch kind {
	case OpcodeText:
		s, err := h.text.decode(f.Payload(), f.fin)
		if err != nil {
			return nil, err
		}
		return &TextFrame{typedBase: base, Text: s, Continuation: continuation, Last: f.fin}, nil
	case OpcodeBinary:
		return &BinaryFrame{typedBase: base, Data: f.Payload(), Continuation: continuation, Last: f.fin}, nil
	case OpcodeClose:
		reason, err := decodeClosePayload(f.Payload())
		if err != nil {
			return nil, err
		}
		return &CloseFrame{typedBase: base, Reason: reason}, nil
	case OpcodePing:
		return &PingFrame{typedBase: base}, nil
	case OpcodePong:
		return &PongFrame{typedBase: base}, nil
	}
	return nil, NewProtocolError(fmt.Sprintf("Unknown opcode %#x", f.opcode))
}

func (h *Handler) resetInbound() {
	h.inFragmentedType = 0
	h.processingFragment = false
	h.text.reset()
}

// Send frames f and hands it to the writer.
func (h *Handler) Send(f *Frame) *Future {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	fut, _, _ := h.writeLocked(f, nil)
	return fut
}

// SendText sends a whole text message.
func (h *Handler) SendText(s string) *Future {
	return h.Send(NewTextFrame(s, false, true))
}

// SendBinary sends a whole binary message.
func (h *Handler) SendBinary(p []byte) *Future {
	return h.Send(NewBinaryFrame(p, false, true))
}

// SendPing sends a ping with up to 125 bytes of application data.
func (h *Handler) SendPing(data []byte) *Future {
	f, err := NewPingFrame(data)
	if err != nil {
		return FailedFuture(err)
	}
	return h.Send(f)
}

// SendPong sends a pong with up to 125 bytes of application data.
func (h *Handler) SendPong(data []byte) *Future {
	f, err := NewPongFrame(data)
	if err != nil {
		return FailedFuture(err)
	}
	return h.Send(f)
}

// StreamText sends one fragment of a text message.
func (h *Handler) StreamText(last bool, fragment string) *Future {
	return h.stream(OpcodeText, last, []byte(fragment))
}

// StreamBinary sends one fragment of a binary message.
func (h *Handler) StreamBinary(last bool, fragment []byte) *Future {
	return h.stream(OpcodeBinary, last, fragment)
}

func (h *Handler) stream(op byte, last bool, data []byte) *Future {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if h.streamType != 0 && h.streamType != op {
		return FailedFuture(ErrSendOutOfOrder)
	}
	var f *Frame
	if h.streamType != 0 {
		f = NewFrameBuilder().Opcode(OpcodeContinuation).Fin(last).PayloadData(data).MustBuild()
	} else {
		f = NewFrameBuilder().Opcode(op).Fin(last).PayloadData(data).MustBuild()
	}
	fut, framed, _ := h.writeLocked(f, nil)
	if framed {
		if last {
			h.streamType = 0
		} else {
			h.streamType = op
		}
	}
	return fut
}

// SendRaw writes bytes that are already a complete serialized frame.
func (h *Handler) SendRaw(p []byte) *Future {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	w := h.loadWriter()
	if w == nil {
		return FailedFuture(api.ErrTransportClosed)
	}
	if h.closeSent {
		return FailedFuture(ErrCloseSent)
	}
	if h.codec.Fragmenting() {
		return FailedFuture(ErrSendOutOfOrder)
	}
	fut := newFuture()
	w.Write(p, &writeCompletion{future: fut})
	return fut
}

// writeLocked frames f and submits it. framed reports whether the frame
// reached the writer; otherwise err holds the reason and next has not
// been notified. Nothing is written after a close frame.
func (h *Handler) writeLocked(f *Frame, next api.CompletionHandler) (fut *Future, framed bool, err error) {
	w := h.loadWriter()
	if w == nil {
		return FailedFuture(api.ErrTransportClosed), false, api.ErrTransportClosed
	}
	if h.closeSent {
		return FailedFuture(ErrCloseSent), false, ErrCloseSent
	}
	data, err := h.codec.Frame(f)
	if err != nil {
		return FailedFuture(err), false, err
	}
	if f.opcode == OpcodeClose {
		h.closeSent = true
	}
	fut = newFuture()
	w.Write(data, &writeCompletion{future: fut, frame: f, next: next})
	return fut, true, nil
}

// Close sends a close frame. Codes that must not appear on the wire are
// sent as 1000 while the close notification keeps the original reason.
// The notification fires when the write fails or is cancelled and, for
// servers, when it completes; clients wait for the peer's close frame.
// An invalid reason or a second close fails without notifying.
func (h *Handler) Close(reason CloseReason) *Future {
	wire := reason
	if wire.Code.localOnly() {
		wire.Code = CloseNormalClosure
	}
	f, err := NewCloseFrame(wire)
	if err != nil {
		return FailedFuture(err)
	}
	notify := func() { h.NotifyClosed(reason) }
	done := completionFuncs{
		completed: func(int) {
			if h.role == api.RoleServer {
				notify()
			}
		},
		failed:    func(error) { notify() },
		cancelled: notify,
	}
	h.wmu.Lock()
	if h.closeSent {
		h.wmu.Unlock()
		return FailedFuture(ErrCloseSent)
	}
	fut, _, err := h.writeLocked(f, done)
	h.wmu.Unlock()
	if err != nil {
		done.Failed(err)
	}
	return fut
}

// CloseSent reports whether a close frame has been framed.
func (h *Handler) CloseSent() bool {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return h.closeSent
}

// NotifyClosed fires the close listener unless it already fired and
// reports whether this call fired it.
func (h *Handler) NotifyClosed(reason CloseReason) bool {
	if !h.onClosedCalled.CompareAndSwap(false, true) {
		return false
	}
	if h.closeListener != nil {
		h.closeListener(reason)
	}
	return true
}

// Closed reports whether the close notification has fired.
func (h *Handler) Closed() bool { return h.onClosedCalled.Load() }

// DoClose closes the transport.
func (h *Handler) DoClose() error {
	w := h.loadWriter()
	if w == nil {
		return api.ErrTransportClosed
	}
	return w.Close()
}

// File: endpoint/dispatcher.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatcher drives a session's reception state machine and delivers
// messages to the registered handlers.

package endpoint

import (
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/protocol"
)

// Dispatcher routes typed inbound events to one session. Its On* methods
// must be called from the session's delivering goroutine.
type Dispatcher struct {
	s        *Session
	endpoint Endpoint
	decoders *decoderSet
	invoke   api.Handler
	guard    api.Handler
	incr     func(key string, delta int64)

	text       TextBuffer
	binary     BinaryBuffer
	stream     atomic.Pointer[streamBuffer]
	discarding bool
}

// State returns the session's reception state.
func (d *Dispatcher) State() api.ReceptionState { return d.s.State() }

// OnMessage delivers a whole text message.
func (d *Dispatcher) OnMessage(msg string) {
	if d.closed() {
		return
	}
	d.s.touch()
	d.interrupt()
	if !d.admit() {
		return
	}
	v := d.s.handlers.view()
	switch {
	case v.wholeText():
		d.decodeText(msg)
	case v.partialText() != nil:
		d.callPartial(v.partialText(), msg, true)
	default:
		d.reportError(ErrTextHandlerNotFound.WithContext("session", d.s.id))
	}
}

// OnBinaryMessage delivers a whole binary message.
func (d *Dispatcher) OnBinaryMessage(msg []byte) {
	if d.closed() {
		return
	}
	d.s.touch()
	d.interrupt()
	if !d.admit() {
		return
	}
	v := d.s.handlers.view()
	switch {
	case v.wholeBinary():
		d.decodeBinary(msg)
	case v.partialBinary() != nil:
		d.callPartial(v.partialBinary(), msg, true)
	default:
		d.reportError(ErrBinaryHandlerNotFound.WithContext("session", d.s.id))
	}
}

// OnPartialMessage delivers one text fragment.
func (d *Dispatcher) OnPartialMessage(fragment string, last bool) {
	if d.closed() {
		return
	}
	d.s.touch()
	v := d.s.handlers.view()
	if d.s.State() == api.StateReceivingBinary {
		d.interrupt()
		err := ErrPartialTextMessageOutOfOrder
		if v.wholeText() && v.readerHandler() == nil {
			err = ErrTextMessageOutOfOrder
		}
		d.reportError(err.WithContext("session", d.s.id))
		return
	}
	first := d.s.State() == api.StateRunning
	if !d.begin(api.StateReceivingText, first, last) {
		return
	}

	switch {
	case v.partialText() != nil:
		d.advance(api.StateReceivingText, last)
		d.callPartial(v.partialText(), fragment, last)
	case v.readerHandler() != nil:
		st := d.stream.Load()
		if first || st == nil {
			st = d.startStream(v.readerHandler(), d.s.MaxTextMessageBufferSize())
		}
		if err := st.Append([]byte(fragment), last); err != nil {
			d.overflow(api.StateReceivingText, err, last)
			return
		}
		d.advance(api.StateReceivingText, last)
	case v.wholeText():
		if first {
			d.text.Reset(d.s.MaxTextMessageBufferSize())
		}
		if err := d.text.Append(fragment); err != nil {
			d.overflow(api.StateReceivingText, err, last)
			return
		}
		d.advance(api.StateReceivingText, last)
		if last {
			msg := d.text.Content()
			d.text.Reset(0)
			d.decodeText(msg)
		}
	default:
		d.advance(api.StateReceivingText, last)
		if last {
			d.reportError(ErrTextHandlerNotFound.WithContext("session", d.s.id))
		}
	}
}

// OnPartialBinaryMessage delivers one binary fragment.
func (d *Dispatcher) OnPartialBinaryMessage(fragment []byte, last bool) {
	if d.closed() {
		return
	}
	d.s.touch()
	v := d.s.handlers.view()
	if d.s.State() == api.StateReceivingText {
		d.interrupt()
		err := ErrPartialBinaryMessageOutOfOrder
		if v.wholeBinary() && v.inputStreamHandler() == nil {
			err = ErrBinaryMessageOutOfOrder
		}
		d.reportError(err.WithContext("session", d.s.id))
		return
	}
	first := d.s.State() == api.StateRunning
	if !d.begin(api.StateReceivingBinary, first, last) {
		return
	}

	switch {
	case v.partialBinary() != nil:
		d.advance(api.StateReceivingBinary, last)
		d.callPartial(v.partialBinary(), fragment, last)
	case v.inputStreamHandler() != nil:
		st := d.stream.Load()
		if first || st == nil {
			st = d.startStream(v.inputStreamHandler(), d.s.MaxBinaryMessageBufferSize())
		}
		if err := st.Append(fragment, last); err != nil {
			d.overflow(api.StateReceivingBinary, err, last)
			return
		}
		d.advance(api.StateReceivingBinary, last)
	case v.wholeBinary():
		if first {
			d.binary.Reset(d.s.MaxBinaryMessageBufferSize())
		}
		if err := d.binary.Append(fragment); err != nil {
			d.overflow(api.StateReceivingBinary, err, last)
			return
		}
		d.advance(api.StateReceivingBinary, last)
		if last {
			msg := d.binary.Content()
			d.binary.Reset(0)
			d.decodeBinary(msg)
		}
	default:
		d.advance(api.StateReceivingBinary, last)
		if last {
			d.reportError(ErrBinaryHandlerNotFound.WithContext("session", d.s.id))
		}
	}
}

// OnPing answers with a pong carrying the same data.
func (d *Dispatcher) OnPing(data []byte) {
	if d.closed() {
		return
	}
	d.s.touch()
	d.s.proto.SendPong(data)
}

// OnPong delivers pong data to the pong handler.
func (d *Dispatcher) OnPong(data []byte) {
	if d.closed() {
		return
	}
	d.s.touch()
	if h := d.s.handlers.view().pong; h != nil {
		d.call(h, data)
		return
	}
	log.Printf("[endpoint] Unhandled pong in session %s", d.s.id)
}

// OnClose moves the session to CLOSED and notifies the endpoint once.
func (d *Dispatcher) OnClose(reason protocol.CloseReason) {
	if !d.s.markClosed() {
		return
	}
	d.abortStream()
	if err := d.guard.Handle(func() error {
		d.endpoint.OnClose(d.s, reason)
		return nil
	}); err != nil {
		d.reportError(err)
	}
}

func (d *Dispatcher) closed() bool { return d.s.State() == api.StateClosed }

// begin applies rate limiting at the first fragment and reports whether
// the fragment should be processed.
func (d *Dispatcher) begin(receiving api.ReceptionState, first, last bool) bool {
	if first {
		d.discarding = false
		if !d.admit() {
			d.discarding = !last
			if !last {
				d.s.transition(receiving)
			}
			return false
		}
	}
	if d.discarding {
		if last {
			d.discarding = false
			d.s.transition(api.StateRunning)
		}
		return false
	}
	return true
}

// advance sets the state after a processed fragment.
func (d *Dispatcher) advance(receiving api.ReceptionState, last bool) {
	if last {
		d.s.transition(api.StateRunning)
		d.stream.Store(nil)
		return
	}
	d.s.transition(receiving)
}

// overflow reports err and drops the rest of the message.
func (d *Dispatcher) overflow(receiving api.ReceptionState, err error, last bool) {
	d.stream.Store(nil)
	d.reportError(err)
	if last {
		d.s.transition(api.StateRunning)
		return
	}
	d.discarding = true
	d.s.transition(receiving)
}

// interrupt abandons a message in progress.
func (d *Dispatcher) interrupt() {
	switch d.s.State() {
	case api.StateReceivingText, api.StateReceivingBinary:
		d.s.transition(api.StateRunning)
	}
	d.abortStream()
	d.discarding = false
}

func (d *Dispatcher) abortStream() {
	if st := d.stream.Swap(nil); st != nil {
		st.Abort(io.ErrUnexpectedEOF)
	}
}

func (d *Dispatcher) admit() bool {
	if l := d.s.limiter; l != nil && !l.Allow() {
		d.reportError(ErrRateLimited.WithContext("session", d.s.id))
		return false
	}
	d.incr("messages.in", 1)
	return true
}

func (d *Dispatcher) startStream(h *MessageHandler, max int) *streamBuffer {
	buf := newStreamBuffer(max)
	d.stream.Store(buf)
	go d.call(h, io.Reader(buf))
	return buf
}

func (d *Dispatcher) decodeText(msg string) {
	var decodeErr error
	handlers := d.s.handlers.ordered()
	for _, dec := range d.decoders.applicableText(msg) {
		for _, h := range handlers {
			if h.partial || !assignable(h.typ, dec.Type()) {
				continue
			}
			v, err := dec.DecodeText(msg)
			if err != nil {
				if decodeErr == nil {
					decodeErr = fmt.Errorf("decode %s: %w", dec.Type(), err)
				}
				break
			}
			d.call(h, v)
			return
		}
	}
	if decodeErr != nil {
		d.reportError(decodeErr)
		return
	}
	log.Printf("[endpoint] Unhandled text message in session %s", d.s.id)
}

func (d *Dispatcher) decodeBinary(msg []byte) {
	var decodeErr error
	handlers := d.s.handlers.ordered()
	for _, dec := range d.decoders.applicableBinary(msg) {
		for _, h := range handlers {
			if h.partial || !assignable(h.typ, dec.Type()) {
				continue
			}
			v, err := dec.DecodeBinary(msg)
			if err != nil {
				if decodeErr == nil {
					decodeErr = fmt.Errorf("decode %s: %w", dec.Type(), err)
				}
				break
			}
			d.call(h, v)
			return
		}
	}
	if decodeErr != nil {
		d.reportError(decodeErr)
		return
	}
	log.Printf("[endpoint] Unhandled binary message in session %s", d.s.id)
}

func (d *Dispatcher) call(h *MessageHandler, msg any) {
	if err := d.invoke.Handle(func() error { return h.basic(d.s, msg) }); err != nil {
		d.reportError(err)
	}
}

func (d *Dispatcher) callPartial(h *MessageHandler, msg any, last bool) {
	if err := d.invoke.Handle(func() error { return h.part(d.s, msg, last) }); err != nil {
		d.reportError(err)
	}
}

// reportError hands err to the endpoint; a failing callback is logged.
func (d *Dispatcher) reportError(err error) {
	if e := d.guard.Handle(func() error {
		d.endpoint.OnError(d.s, err)
		return nil
	}); e != nil {
		log.Printf("[endpoint] error callback failed in session %s: %v (reporting %v)", d.s.id, e, err)
	}
}

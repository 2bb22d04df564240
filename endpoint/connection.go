// File: endpoint/connection.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection owns the protocol handler, the session and its dispatcher,
// and runs the closing handshake.

package endpoint

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/protocol"
)

var errAlreadyClosing = fmt.Errorf("%w: closing handshake already started", api.ErrSessionClosed)

// Connection binds one transport to one session.
type Connection struct {
	proto    *protocol.Handler
	session  *Session
	dispatch *Dispatcher
	wrapper  *Wrapper

	buf     []byte
	closing atomic.Bool
	done    atomic.Bool
}

// Session returns the connection's session.
func (c *Connection) Session() *Session { return c.session }

// Dispatcher returns the connection's dispatcher.
func (c *Connection) Dispatcher() *Dispatcher { return c.dispatch }

// Feed pushes inbound bytes. Complete frames are processed in order; a
// trailing partial frame is kept for the next call. A returned error is
// fatal: the connection has already started closing.
func (c *Connection) Feed(p []byte) error {
	if c.done.Load() {
		return nil
	}
	c.buf = append(c.buf, p...)
	off := 0
	defer func() {
		n := copy(c.buf, c.buf[off:])
		c.buf = c.buf[:n]
	}()
	for off < len(c.buf) {
		f, n, err := c.proto.Unframe(c.buf[off:])
		off += n
		if err != nil {
			off = len(c.buf)
			c.fail(err)
			return err
		}
		if f == nil {
			return nil
		}
		c.wrapper.incr("frames.in", 1)
		tf, err := c.proto.Process(f)
		if err != nil {
			off = len(c.buf)
			c.fail(err)
			return err
		}
		if stop := c.deliver(tf); stop {
			off = len(c.buf)
			return nil
		}
	}
	return nil
}

// deliver routes a typed frame and reports whether input must stop.
func (c *Connection) deliver(tf protocol.TypedFrame) bool {
	switch fr := tf.(type) {
	case *protocol.TextFrame:
		if fr.IsWhole() {
			c.dispatch.OnMessage(fr.Text)
		} else {
			c.dispatch.OnPartialMessage(fr.Text, fr.Last)
		}
	case *protocol.BinaryFrame:
		if fr.IsWhole() {
			c.dispatch.OnBinaryMessage(fr.Data)
		} else {
			c.dispatch.OnPartialBinaryMessage(fr.Data, fr.Last)
		}
	case *protocol.PingFrame:
		c.dispatch.OnPing(fr.Data())
	case *protocol.PongFrame:
		c.dispatch.OnPong(fr.Data())
	case *protocol.CloseFrame:
		c.onCloseFrame(fr.Reason)
		return true
	}
	return false
}

// onCloseFrame handles the peer's close frame: either the peer starts the
// handshake and gets an echo, or this is the reply to our close.
func (c *Connection) onCloseFrame(reason protocol.CloseReason) {
	if c.closing.CompareAndSwap(false, true) {
		c.proto.NotifyClosed(reason)
		c.closeAfter(c.proto.Close(reason), reason)
		return
	}
	c.proto.NotifyClosed(reason)
	c.shutdown()
}

// close starts a locally initiated closing handshake. A reason that
// cannot be framed is rejected before the handshake is marked started.
func (c *Connection) close(reason protocol.CloseReason) *protocol.Future {
	if err := reason.Validate(); err != nil {
		return protocol.FailedFuture(err)
	}
	if !c.closing.CompareAndSwap(false, true) {
		return protocol.FailedFuture(errAlreadyClosing)
	}
	return c.proto.Close(reason)
}

// fail closes the connection after a fatal protocol error.
func (c *Connection) fail(err error) {
	c.wrapper.incr("protocol.errors", 1)
	reason, ok := protocol.AsFatal(err)
	if !ok {
		reason = protocol.NewCloseReason(protocol.CloseUnexpectedCondition, err.Error())
	}
	reason.Phrase = protocol.TruncatePhrase(reason.Phrase)
	log.Printf("[endpoint] protocol error in session %s: %v", c.session.id, err)
	c.dispatch.reportError(err)
	if !c.closing.CompareAndSwap(false, true) {
		c.proto.NotifyClosed(reason)
		c.shutdown()
		return
	}
	c.closeAfter(c.proto.Close(reason), reason)
}

// closeAfter notifies and drops the transport once fut resolves.
func (c *Connection) closeAfter(fut *protocol.Future, reason protocol.CloseReason) {
	finish := func() {
		c.proto.NotifyClosed(reason)
		c.shutdown()
	}
	select {
	case <-fut.Done():
		finish()
	default:
		go func() {
			<-fut.Done()
			finish()
		}()
	}
}

// shutdown closes the transport once.
func (c *Connection) shutdown() {
	if c.done.CompareAndSwap(false, true) {
		if err := c.proto.DoClose(); err != nil {
			log.Printf("[endpoint] transport close failed in session %s: %v", c.session.id, err)
		}
	}
}

// TransportClosed reports that the transport ended without a closing
// handshake; the session closes with 1006.
func (c *Connection) TransportClosed(err error) {
	c.closing.Store(true)
	c.done.Store(true)
	phrase := ""
	if err != nil {
		phrase = protocol.TruncatePhrase(err.Error())
	}
	c.proto.NotifyClosed(protocol.NewCloseReason(protocol.CloseClosedAbnormally, phrase))
}

// File: transport/netconn.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NetConn adapts a net.Conn to the engine: it is the api.Writer frames are
// sent through and runs the read loop that feeds inbound bytes.

package transport

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/wsengine/api"
)

// Receiver consumes inbound bytes of one connection.
// *endpoint.Connection implements it.
type Receiver interface {
	Feed(p []byte) error
	TransportClosed(err error)
}

// NetConn wraps a net.Conn. Writes are queued and flushed in order by a
// dedicated goroutine; a full queue blocks the sender.
type NetConn struct {
	conn net.Conn
	cfg  Config
	ctx  context.Context
	q    *writeQueue

	// buffered holds bytes read past the upgrade response.
	buffered []byte

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	flushed   chan struct{}
	stopWake  func() bool

	bytesOut atomic.Int64
	bytesIn  atomic.Int64
}

// NewNetConn starts the flush goroutine for conn. Cancelling ctx fails
// writes blocked on a full queue; it does not close the connection.
func NewNetConn(ctx context.Context, conn net.Conn, cfg Config) *NetConn {
	cfg = cfg.withDefaults()
	n := &NetConn{
		conn:    conn,
		cfg:     cfg,
		ctx:     ctx,
		q:       newWriteQueue(cfg.WriteQueueSize),
		flushed: make(chan struct{}),
	}
	n.stopWake = context.AfterFunc(ctx, n.q.wake)
	go n.flush()
	return n
}

// Write implements api.Writer.
func (n *NetConn) Write(p []byte, h api.CompletionHandler) {
	if err := n.q.push(n.ctx, pending{data: p, h: h}); err != nil {
		if errors.Is(err, api.ErrTransportClosed) {
			h.Cancelled()
			return
		}
		h.Failed(err)
	}
}

// Close implements api.Writer. Queued writes are cancelled.
func (n *NetConn) Close() error {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		n.stopWake()
		for _, p := range n.q.close() {
			p.h.Cancelled()
		}
		n.closeErr = n.conn.Close()
	})
	return n.closeErr
}

// Closed reports whether Close was called.
func (n *NetConn) Closed() bool { return n.closed.Load() }

// Flushed is closed when the flush goroutine exits.
func (n *NetConn) Flushed() <-chan struct{} { return n.flushed }

// Queued returns the number of writes waiting for the socket.
func (n *NetConn) Queued() int { return n.q.length() }

// BytesOut returns the number of bytes written to the socket.
func (n *NetConn) BytesOut() int64 { return n.bytesOut.Load() }

// BytesIn returns the number of bytes read from the socket.
func (n *NetConn) BytesIn() int64 { return n.bytesIn.Load() }

// RemoteAddr returns the peer address.
func (n *NetConn) RemoteAddr() net.Addr { return n.conn.RemoteAddr() }

func (n *NetConn) flush() {
	defer close(n.flushed)
	for {
		batch, ok := n.q.drain()
		if !ok {
			return
		}
		bufs := make(net.Buffers, len(batch))
		for i := range batch {
			bufs[i] = batch[i].data
		}
		if n.cfg.WriteTimeout > 0 {
			_ = n.conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
		}
		written, err := bufs.WriteTo(n.conn)
		n.bytesOut.Add(written)
		if err != nil {
			if !n.closed.Load() {
				log.Printf("[transport] write to %s failed: %v", n.conn.RemoteAddr(), err)
			}
			for _, p := range batch {
				p.h.Failed(err)
			}
			n.Close()
			return
		}
		for _, p := range batch {
			p.h.Completed(len(p.data))
		}
	}
}

// Serve runs the read loop, feeding r until the connection ends. It
// returns nil when the engine closed the transport, the Feed error when
// the peer violated the protocol, and the read error otherwise. Cancelling
// ctx closes the connection.
func (n *NetConn) Serve(ctx context.Context, r Receiver) error {
	stop := context.AfterFunc(ctx, func() { n.Close() })
	defer stop()

	if len(n.buffered) > 0 {
		p := n.buffered
		n.buffered = nil
		n.bytesIn.Add(int64(len(p)))
		if err := r.Feed(p); err != nil {
			return err
		}
	}
	buf := make([]byte, n.cfg.ReadBufferSize)
	for {
		if n.cfg.ReadTimeout > 0 {
			_ = n.conn.SetReadDeadline(time.Now().Add(n.cfg.ReadTimeout))
		}
		k, err := n.conn.Read(buf)
		if k > 0 {
			n.bytesIn.Add(int64(k))
			if ferr := r.Feed(buf[:k]); ferr != nil {
				return ferr
			}
		}
		if err == nil {
			continue
		}
		engineClosed := n.closed.Load()
		r.TransportClosed(err)
		n.Close()
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case engineClosed:
			return nil
		}
		return err
	}
}

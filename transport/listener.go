// File: transport/listener.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP acceptor that tunes every accepted socket before net/http sees it.

package transport

import (
	"log"
	"net"
)

// Listener wraps a net.Listener and applies Tune to accepted connections.
type Listener struct {
	net.Listener
	cfg Config
}

// Listen opens a TCP listener on addr.
func Listen(addr string, cfg Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewListener(ln, cfg), nil
}

// NewListener wraps ln.
func NewListener(ln net.Listener, cfg Config) *Listener {
	return &Listener{Listener: ln, cfg: cfg}
}

// Accept waits for the next connection. Tuning failures are logged and
// the connection is used as is.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := Tune(conn, l.cfg); err != nil {
		log.Printf("[transport] tune %s: %v", conn.RemoteAddr(), err)
	}
	return conn, nil
}

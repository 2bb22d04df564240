// File: transport/sockopt_other.go
//go:build !linux

// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "net"

// Tune applies cfg's socket options to TCP connections.
func Tune(conn net.Conn, cfg Config) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(cfg.NoDelay); err != nil {
		return err
	}
	if cfg.SendBufferSize > 0 {
		return tc.SetWriteBuffer(cfg.SendBufferSize)
	}
	return nil
}

// File: transport/sockopt_linux.go
//go:build linux

// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket tuning on the raw descriptor.

package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Tune applies cfg's socket options to conn. Connections without a file
// descriptor are left alone.
func Tune(conn net.Conn, cfg Config) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn: %w", err)
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		if cfg.NoDelay {
			if serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); serr != nil {
				serr = fmt.Errorf("TCP_NODELAY: %w", serr)
				return
			}
		}
		if cfg.SendBufferSize > 0 {
			if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBufferSize); serr != nil {
				serr = fmt.Errorf("SO_SNDBUF: %w", serr)
			}
		}
	})
	if err != nil {
		return err
	}
	return serr
}

// File: transport/config.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "time"

const (
	// DefaultWriteQueueSize is the number of frames queued before senders block.
	DefaultWriteQueueSize = 32
	// DefaultReadBufferSize is the size of one socket read.
	DefaultReadBufferSize = 4096
)

// Config tunes one connection's socket handling.
type Config struct {
	WriteQueueSize int
	ReadBufferSize int
	// WriteTimeout bounds one flush; ReadTimeout bounds the wait for the
	// next read. Zero disables either deadline.
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	NoDelay        bool
	SendBufferSize int // SO_SNDBUF, 0 keeps the system default
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		WriteQueueSize: DefaultWriteQueueSize,
		ReadBufferSize: DefaultReadBufferSize,
		NoDelay:        true,
	}
}

func (c Config) withDefaults() Config {
	if c.WriteQueueSize <= 0 {
		c.WriteQueueSize = DefaultWriteQueueSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	return c
}

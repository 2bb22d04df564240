// File: endpoint/config.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint configuration with functional options.

package endpoint

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/protocol"
)

// Keys accepted by the endpoint's api.Control SetConfig. Changes apply to
// sessions opened afterwards.
const (
	KeyMaxTextMessageBufferSize   = "maxTextMessageBufferSize"
	KeyMaxBinaryMessageBufferSize = "maxBinaryMessageBufferSize"
	KeyIdleTimeout                = "idleTimeout"
)

// RateLimitConfig limits inbound messages per session.
type RateLimitConfig struct {
	// MessagesPerSecond is the sustained rate.
	MessagesPerSecond rate.Limit
	// Burst is the token bucket capacity.
	Burst int
}

// Config holds endpoint-wide settings copied into each new session.
type Config struct {
	Role api.Role

	// Reassembly limits in bytes for whole-message and stream handlers.
	MaxTextMessageBufferSize   int
	MaxBinaryMessageBufferSize int

	// MaxFramePayload bounds a single inbound frame.
	MaxFramePayload int64

	// IdleTimeout closes sessions without inbound traffic; 0 disables it.
	IdleTimeout time.Duration

	RateLimit *RateLimitConfig

	// Extensions available for negotiation.
	Extensions []protocol.Extension

	TextDecoders   []TextDecoder
	BinaryDecoders []BinaryDecoder

	// TraceHandlers logs every application callback invocation.
	TraceHandlers bool

	// ShardCount sizes the session registry.
	ShardCount int
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the settings used when no option overrides them.
func DefaultConfig() Config {
	return Config{
		Role:                       api.RoleServer,
		MaxTextMessageBufferSize:   1 << 20,
		MaxBinaryMessageBufferSize: 1 << 20,
		MaxFramePayload:            protocol.DefaultMaxFramePayload,
		ShardCount:                 16,
	}
}

// WithRole selects server or client framing.
func WithRole(r api.Role) Option {
	return func(c *Config) { c.Role = r }
}

// WithMaxTextMessageBufferSize sets the text reassembly limit.
func WithMaxTextMessageBufferSize(n int) Option {
	return func(c *Config) { c.MaxTextMessageBufferSize = n }
}

// WithMaxBinaryMessageBufferSize sets the binary reassembly limit.
func WithMaxBinaryMessageBufferSize(n int) Option {
	return func(c *Config) { c.MaxBinaryMessageBufferSize = n }
}

// WithMaxFramePayload bounds inbound frame payloads.
func WithMaxFramePayload(n int64) Option {
	return func(c *Config) { c.MaxFramePayload = n }
}

// WithIdleTimeout sets the session idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithRateLimit enables per-session inbound message rate limiting.
func WithRateLimit(perSecond rate.Limit, burst int) Option {
	return func(c *Config) {
		c.RateLimit = &RateLimitConfig{MessagesPerSecond: perSecond, Burst: burst}
	}
}

// WithExtensions makes extensions available for negotiation.
func WithExtensions(exts ...protocol.Extension) Option {
	return func(c *Config) { c.Extensions = append(c.Extensions, exts...) }
}

// WithTextDecoders registers application text decoders. They are tried
// before the built-in ones, in the given order.
func WithTextDecoders(d ...TextDecoder) Option {
	return func(c *Config) { c.TextDecoders = append(c.TextDecoders, d...) }
}

// WithBinaryDecoders registers application binary decoders.
func WithBinaryDecoders(d ...BinaryDecoder) Option {
	return func(c *Config) { c.BinaryDecoders = append(c.BinaryDecoders, d...) }
}

// WithHandlerTracing logs each callback invocation.
func WithHandlerTracing() Option {
	return func(c *Config) { c.TraceHandlers = true }
}

// applyControl overlays runtime-tunable keys from a control snapshot.
// Values were normalized by the validators registered in NewWrapper.
func (c *Config) applyControl(values map[string]any) {
	if n, ok := values[KeyMaxTextMessageBufferSize].(int); ok {
		c.MaxTextMessageBufferSize = n
	}
	if n, ok := values[KeyMaxBinaryMessageBufferSize].(int); ok {
		c.MaxBinaryMessageBufferSize = n
	}
	if d, ok := values[KeyIdleTimeout].(time.Duration); ok {
		c.IdleTimeout = d
	}
}

func positiveInt(v any) (any, error) {
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d is not positive", api.ErrInvalidArgument, n)
	}
	return n, nil
}

func nonNegativeDuration(v any) (any, error) {
	d, err := toDuration(v)
	if err != nil {
		return nil, err
	}
	if d < 0 {
		return nil, fmt.Errorf("%w: negative duration %v", api.ErrInvalidArgument, d)
	}
	return d, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %T is not an integer", api.ErrInvalidArgument, v)
}

func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		pd, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
		}
		return pd, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %T is not a duration", api.ErrInvalidArgument, v)
}

// File: api/context.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Key-value contract for per-session user properties.

package api

import "time"

// Properties is a concurrent key-value store attached to a session.
type Properties interface {
	Set(key string, value any)
	Get(key string) (any, bool)
	Delete(key string)
	// WithExpiration drops key after ttl elapses.
	WithExpiration(key string, ttl time.Duration)
	Keys() []string
}

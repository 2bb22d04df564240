// File: api/control.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control exposes an endpoint's runtime-tunable settings and statistics.
// SetConfig rejects invalid values per key and applies the rest; reload
// listeners run after accepted changes.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	Stats() map[string]any
	OnReload(fn func())
	RegisterDebugProbe(name string, fn func() any)
}

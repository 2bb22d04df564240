// File: api/handler.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler runs one unit of application work. The endpoint passes each
// callback invocation through a Handler chain built by adapters, so
// recovery, tracing and metrics wrap user code uniformly.
type Handler interface {
	Handle(data any) error
}

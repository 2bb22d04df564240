// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// HandlerFunc glue and middleware chains guarding application callbacks.

package adapters

import (
	"fmt"
	"log"

	"github.com/momentics/wsengine/api"
)

// ErrHandlerPanic wraps a panic raised by an application callback.
var ErrHandlerPanic = fmt.Errorf("handler panicked")

// HandlerFunc converts a function into an api.Handler.
type HandlerFunc func(data any) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(data any) error {
	return f(data)
}

// Invoker is the base handler of callback chains: data must be a
// func() error, which it calls.
var Invoker api.Handler = HandlerFunc(func(data any) error {
	fn, ok := data.(func() error)
	if !ok {
		return fmt.Errorf("%w: %T is not a callback", api.ErrInvalidArgument, data)
	}
	return fn()
})

// MiddlewareHandler wraps a base Handler and applies middleware in chain.
type MiddlewareHandler struct {
	handler    api.Handler
	middleware []func(api.Handler) api.Handler
	chain      api.Handler
}

// NewMiddlewareHandler creates a new MiddlewareHandler for the given base handler.
func NewMiddlewareHandler(handler api.Handler) *MiddlewareHandler {
	return &MiddlewareHandler{
		handler:    handler,
		middleware: make([]func(api.Handler) api.Handler, 0),
		chain:      handler,
	}
}

// Use appends a middleware to the chain. The first middleware added is the
// outermost. Not safe for use concurrently with Handle.
func (m *MiddlewareHandler) Use(mw func(api.Handler) api.Handler) *MiddlewareHandler {
	m.middleware = append(m.middleware, mw)
	handler := m.handler
	for i := len(m.middleware) - 1; i >= 0; i-- {
		handler = m.middleware[i](handler)
	}
	m.chain = handler
	return m
}

// Handle runs data through the middleware chain.
func (m *MiddlewareHandler) Handle(data any) error {
	return m.chain.Handle(data)
}

// LoggingMiddleware logs entry and errors of handler invocation.
func LoggingMiddleware(next api.Handler) api.Handler {
	return HandlerFunc(func(data any) error {
		log.Printf("[Handler] Processing data: %T", data)
		err := next.Handle(data)
		if err != nil {
			log.Printf("[Handler] Error: %v", err)
		}
		return err
	})
}

// RecoveryMiddleware turns a panic in the handler into an ErrHandlerPanic.
func RecoveryMiddleware(next api.Handler) api.Handler {
	return HandlerFunc(func(data any) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Handler] Panic recovered: %v", r)
				if e, ok := r.(error); ok {
					err = fmt.Errorf("%w: %w", ErrHandlerPanic, e)
				} else {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}
		}()
		return next.Handle(data)
	})
}

// MetricsMiddleware counts "handler.processed" and "handler.errors" through incr.
func MetricsMiddleware(incr func(key string, delta int64)) func(api.Handler) api.Handler {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(data any) error {
			err := next.Handle(data)
			incr("handler.processed", 1)
			if err != nil {
				incr("handler.errors", 1)
			}
			return err
		})
	}
}

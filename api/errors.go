// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for wsengine.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrTransportClosed   = fmt.Errorf("transport is closed")
	ErrSessionClosed     = fmt.Errorf("session is closed")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
	ErrOperationTimeout  = fmt.Errorf("operation timeout")
	ErrWriteCancelled    = fmt.Errorf("frame writing was cancelled")
	ErrNotSupported      = fmt.Errorf("operation not supported")
	ErrAlreadyExists     = fmt.Errorf("resource already exists")
	ErrNotFound          = fmt.Errorf("resource not found")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
	ErrCodeProtocol
	ErrCodeBufferOverflow
	ErrCodeOutOfOrder
	ErrCodeHandlerNotFound
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is matches another *Error carrying the same code and message, which lets
// package-level *Error values act as sentinels after WithContext copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext returns a copy of the error with additional context information.
// The receiver is left untouched so shared sentinels stay immutable.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// File: endpoint/errors.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Errors reported to the application error callback.

package endpoint

import (
	"fmt"

	"github.com/momentics/wsengine/api"
)

var (
	ErrTextMessageOutOfOrder          = api.NewError(api.ErrCodeOutOfOrder, "text message received out of order")
	ErrBinaryMessageOutOfOrder        = api.NewError(api.ErrCodeOutOfOrder, "binary message received out of order")
	ErrPartialTextMessageOutOfOrder   = api.NewError(api.ErrCodeOutOfOrder, "partial text message received out of order")
	ErrPartialBinaryMessageOutOfOrder = api.NewError(api.ErrCodeOutOfOrder, "partial binary message received out of order")

	ErrTextHandlerNotFound   = api.NewError(api.ErrCodeHandlerNotFound, "text message handler not found")
	ErrBinaryHandlerNotFound = api.NewError(api.ErrCodeHandlerNotFound, "binary message handler not found")

	ErrHandlerAlreadyRegistered = api.NewError(api.ErrCodeAlreadyExists, "message handler already registered")
	ErrDecoderNotFound          = api.NewError(api.ErrCodeNotFound, "no decoder registered for handler type")
	ErrInvalidHandler           = api.NewError(api.ErrCodeInvalidArgument, "invalid message handler")

	ErrBufferOverflow = api.NewError(api.ErrCodeBufferOverflow, "buffer overflow")
	ErrRateLimited    = api.NewError(api.ErrCodeResourceExhausted, "message rate limit exceeded")
)

// BufferOverflowError reports a message that outgrew its reassembly buffer.
type BufferOverflowError struct {
	Limit int
	Size  int
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("buffer overflow: message of %d bytes exceeds the limit of %d bytes", e.Size, e.Limit)
}

// Is matches ErrBufferOverflow.
func (e *BufferOverflowError) Is(target error) bool {
	return target == error(ErrBufferOverflow)
}

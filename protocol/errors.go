// File: protocol/errors.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fatal protocol-layer errors. Each one carries the close reason that the
// connection must be terminated with.

package protocol

import "errors"

var (
	// ErrProtocol matches every *ProtocolError.
	ErrProtocol = errors.New("websocket protocol error")

	// ErrInvalidUTF8 matches every *Utf8DecodingError.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 in text payload")

	// ErrSendOutOfOrder is returned when a data frame of another kind is
	// sent while an outbound fragmented message is still open.
	ErrSendOutOfOrder = errors.New("Attempting to send a message while sending fragments of another")
)

// ProtocolError is an RFC 6455 violation by the peer.
type ProtocolError struct {
	msg    string
	reason CloseReason
}

// NewProtocolError returns a protocol error closing with 1002.
func NewProtocolError(msg string) *ProtocolError {
	return &ProtocolError{msg: msg, reason: CloseReason{Code: CloseProtocolError, Phrase: msg}}
}

func newProtocolErrorCode(code CloseCode, msg string) *ProtocolError {
	return &ProtocolError{msg: msg, reason: CloseReason{Code: code, Phrase: msg}}
}

func (e *ProtocolError) Error() string            { return e.msg }
func (e *ProtocolError) Is(target error) bool     { return target == ErrProtocol }
func (e *ProtocolError) CloseReason() CloseReason { return e.reason }

// Utf8DecodingError reports a malformed or truncated UTF-8 text payload.
type Utf8DecodingError struct {
	msg string
}

func (e *Utf8DecodingError) Error() string        { return e.msg }
func (e *Utf8DecodingError) Is(target error) bool { return target == ErrInvalidUTF8 }
func (e *Utf8DecodingError) CloseReason() CloseReason {
	return CloseReason{Code: CloseNotConsistent, Phrase: e.msg}
}

// Fatal is implemented by errors that must terminate the connection.
type Fatal interface {
	error
	CloseReason() CloseReason
}

// AsFatal extracts the close reason of a connection-terminating error.
func AsFatal(err error) (CloseReason, bool) {
	var f Fatal
	if errors.As(err, &f) {
		return f.CloseReason(), true
	}
	return CloseReason{}, false
}

// File: protocol/close.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close status codes and close frame payload encoding.

package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/momentics/wsengine/api"
)

// CloseCode is a close status code (RFC 6455 section 7.4).
type CloseCode uint16

const (
	CloseNormalClosure       CloseCode = 1000
	CloseGoingAway           CloseCode = 1001
	CloseProtocolError       CloseCode = 1002
	CloseCannotAccept        CloseCode = 1003
	CloseReserved            CloseCode = 1004
	CloseNoStatusCode        CloseCode = 1005
	CloseClosedAbnormally    CloseCode = 1006
	CloseNotConsistent       CloseCode = 1007
	CloseViolatedPolicy      CloseCode = 1008
	CloseTooBig              CloseCode = 1009
	CloseNoExtension         CloseCode = 1010
	CloseUnexpectedCondition CloseCode = 1011
	CloseServiceRestart      CloseCode = 1012
	CloseTryAgainLater       CloseCode = 1013
	CloseTLSHandshakeFailure CloseCode = 1015
)

// MaxCloseReasonLen is the longest reason phrase a close frame can carry.
const MaxCloseReasonLen = MaxControlPayloadLen - 2

func (c CloseCode) String() string {
	switch c {
	case CloseNormalClosure:
		return "NORMAL_CLOSURE"
	case CloseGoingAway:
		return "GOING_AWAY"
	case CloseProtocolError:
		return "PROTOCOL_ERROR"
	case CloseCannotAccept:
		return "CANNOT_ACCEPT"
	case CloseReserved:
		return "RESERVED"
	case CloseNoStatusCode:
		return "NO_STATUS_CODE"
	case CloseClosedAbnormally:
		return "CLOSED_ABNORMALLY"
	case CloseNotConsistent:
		return "NOT_CONSISTENT"
	case CloseViolatedPolicy:
		return "VIOLATED_POLICY"
	case CloseTooBig:
		return "TOO_BIG"
	case CloseNoExtension:
		return "NO_EXTENSION"
	case CloseUnexpectedCondition:
		return "UNEXPECTED_CONDITION"
	case CloseServiceRestart:
		return "SERVICE_RESTART"
	case CloseTryAgainLater:
		return "TRY_AGAIN_LATER"
	case CloseTLSHandshakeFailure:
		return "TLS_HANDSHAKE_FAILURE"
	}
	return fmt.Sprintf("CLOSE_CODE(%d)", uint16(c))
}

// localOnly reports codes that must never appear in a close frame.
func (c CloseCode) localOnly() bool {
	return c == CloseNoStatusCode || c == CloseClosedAbnormally || c == CloseTLSHandshakeFailure
}

// validOnWire reports whether a peer may send c.
func (c CloseCode) validOnWire() bool {
	switch {
	case c < 1000:
		return false
	case c == CloseReserved || c.localOnly():
		return false
	case c <= CloseTryAgainLater:
		return true
	case c >= 3000 && c <= 4999:
		return true
	}
	return false
}

// CloseReason pairs a close code with a human readable phrase.
type CloseReason struct {
	Code   CloseCode
	Phrase string
}

// NewCloseReason builds a close reason.
func NewCloseReason(code CloseCode, phrase string) CloseReason {
	return CloseReason{Code: code, Phrase: phrase}
}

func (r CloseReason) String() string {
	return fmt.Sprintf("CloseReason[%d,%s]", uint16(r.Code), r.Phrase)
}

// Validate reports whether the phrase fits a close frame.
func (r CloseReason) Validate() error {
	if len(r.Phrase) > MaxCloseReasonLen {
		return fmt.Errorf("%w: close reason phrase is %d bytes, at most %d allowed",
			api.ErrInvalidArgument, len(r.Phrase), MaxCloseReasonLen)
	}
	if !utf8.ValidString(r.Phrase) {
		return fmt.Errorf("%w: close reason phrase is not valid UTF-8", api.ErrInvalidArgument)
	}
	return nil
}

// TruncatePhrase makes s usable as a close reason phrase: invalid UTF-8
// is replaced and the text is cut at a rune boundary within the limit.
func TruncatePhrase(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= MaxCloseReasonLen {
		return s
	}
	n := MaxCloseReasonLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// encodeClosePayload renders code and phrase as a close frame payload.
func encodeClosePayload(r CloseReason) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	p := make([]byte, 2+len(r.Phrase))
	binary.BigEndian.PutUint16(p, uint16(r.Code))
	copy(p[2:], r.Phrase)
	return p, nil
}

// decodeClosePayload parses a received close frame payload. An empty
// payload maps to 1005; a single byte or an illegal code is a protocol error.
func decodeClosePayload(p []byte) (CloseReason, error) {
	switch len(p) {
	case 0:
		return CloseReason{Code: CloseNoStatusCode}, nil
	case 1:
		return CloseReason{}, NewProtocolError("Close frame payload, if present, must be a minimum of 2 bytes in length")
	}
	code := CloseCode(binary.BigEndian.Uint16(p))
	if !code.validOnWire() {
		return CloseReason{}, NewProtocolError(fmt.Sprintf("Illegal close code: %d", uint16(code)))
	}
	phrase := p[2:]
	if !utf8.Valid(phrase) {
		return CloseReason{}, &Utf8DecodingError{msg: "Illegal UTF-8 Sequence in close reason"}
	}
	return CloseReason{Code: code, Phrase: string(phrase)}, nil
}

// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// ReceptionState enumerates what a session is currently receiving.
type ReceptionState int32

const (
	StateRunning ReceptionState = iota
	StateReceivingText
	StateReceivingBinary
	StateClosed
)

func (s ReceptionState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReceivingText:
		return "receiving_text"
	case StateReceivingBinary:
		return "receiving_binary"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role selects the masking behaviour of an endpoint (RFC 6455 §5.3).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

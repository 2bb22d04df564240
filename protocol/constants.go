// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Data opcodes (<0x8)
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2

	// Control opcodes (>=0x8)
	OpcodeClose byte = 0x8
	OpcodePing  byte = 0x9
	OpcodePong  byte = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking
	MaskSize             = 4

	// Bit masks
	FinBit     = 0x80
	Rsv1Bit    = 0x40
	Rsv2Bit    = 0x20
	Rsv3Bit    = 0x10
	OpcodeMask = 0x0F
	MaskBit    = 0x80
	LenMask    = 0x7F

	// Length codes
	payloadLen16 = 126
	payloadLen64 = 127
)

// IsControl reports whether opcode denotes a control frame.
func IsControl(opcode byte) bool {
	return opcode&0x08 != 0
}

// isKnownOpcode reports whether opcode is defined by RFC 6455.
func isKnownOpcode(opcode byte) bool {
	switch opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	return false
}

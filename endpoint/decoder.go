// File: endpoint/decoder.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoders turning whole messages into handler arguments.

package endpoint

import (
	"bytes"
	"strings"
)

// Built-in handler type tags. Application types use their own tags; a tag
// of the form "parent/child" is a more specific form of "parent".
const (
	TypeString      = "string"
	TypeBytes       = "bytes"
	TypeReader      = "reader"
	TypeInputStream = "input-stream"
	TypePong        = "pong"
)

// TextDecoder converts a whole text message into a value of Type().
type TextDecoder interface {
	Type() string
	WillDecode(s string) bool
	DecodeText(s string) (any, error)
}

// BinaryDecoder converts a whole binary message into a value of Type().
type BinaryDecoder interface {
	Type() string
	WillDecode(p []byte) bool
	DecodeBinary(p []byte) (any, error)
}

type textDecoderFunc struct {
	typ    string
	will   func(string) bool
	decode func(string) (any, error)
}

// NewTextDecoder builds a TextDecoder; a nil will accepts every message.
func NewTextDecoder(typ string, will func(string) bool, decode func(string) (any, error)) TextDecoder {
	return &textDecoderFunc{typ: typ, will: will, decode: decode}
}

func (d *textDecoderFunc) Type() string { return d.typ }
func (d *textDecoderFunc) WillDecode(s string) bool {
	return d.will == nil || d.will(s)
}
func (d *textDecoderFunc) DecodeText(s string) (any, error) { return d.decode(s) }

type binaryDecoderFunc struct {
	typ    string
	will   func([]byte) bool
	decode func([]byte) (any, error)
}

// NewBinaryDecoder builds a BinaryDecoder; a nil will accepts every message.
func NewBinaryDecoder(typ string, will func([]byte) bool, decode func([]byte) (any, error)) BinaryDecoder {
	return &binaryDecoderFunc{typ: typ, will: will, decode: decode}
}

func (d *binaryDecoderFunc) Type() string { return d.typ }
func (d *binaryDecoderFunc) WillDecode(p []byte) bool {
	return d.will == nil || d.will(p)
}
func (d *binaryDecoderFunc) DecodeBinary(p []byte) (any, error) { return d.decode(p) }

var (
	builtinTextDecoders = []TextDecoder{
		NewTextDecoder(TypeString, nil, func(s string) (any, error) { return s, nil }),
		NewTextDecoder(TypeReader, nil, func(s string) (any, error) { return strings.NewReader(s), nil }),
	}
	builtinBinaryDecoders = []BinaryDecoder{
		NewBinaryDecoder(TypeBytes, nil, func(p []byte) (any, error) { return p, nil }),
		NewBinaryDecoder(TypeInputStream, nil, func(p []byte) (any, error) { return bytes.NewReader(p), nil }),
	}
)

// decoderSet is the ordered decoder list of an endpoint: application
// decoders first, built-ins last.
type decoderSet struct {
	text   []TextDecoder
	binary []BinaryDecoder
}

func newDecoderSet(text []TextDecoder, binary []BinaryDecoder) *decoderSet {
	d := &decoderSet{}
	d.text = append(append(d.text, text...), builtinTextDecoders...)
	d.binary = append(append(d.binary, binary...), builtinBinaryDecoders...)
	return d
}

func (d *decoderSet) applicableText(s string) []TextDecoder {
	var out []TextDecoder
	for _, dec := range d.text {
		if dec.WillDecode(s) {
			out = append(out, dec)
		}
	}
	return out
}

func (d *decoderSet) applicableBinary(p []byte) []BinaryDecoder {
	var out []BinaryDecoder
	for _, dec := range d.binary {
		if dec.WillDecode(p) {
			out = append(out, dec)
		}
	}
	return out
}

func (d *decoderSet) hasText(typ string) bool {
	for _, dec := range d.text {
		if assignable(typ, dec.Type()) {
			return true
		}
	}
	return false
}

func (d *decoderSet) hasBinary(typ string) bool {
	for _, dec := range d.binary {
		if assignable(typ, dec.Type()) {
			return true
		}
	}
	return false
}

// assignable reports whether a handler for typ accepts values of tag from.
func assignable(typ, from string) bool {
	return typ == from || strings.HasPrefix(from, typ+"/")
}

// specificity is the depth of a type tag.
func specificity(typ string) int {
	return strings.Count(typ, "/")
}

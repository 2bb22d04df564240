// File: protocol/utf8.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Streaming UTF-8 validation for text messages spanning several frames.

package protocol

import "unicode/utf8"

// utf8Decoder decodes text fragments, carrying an incomplete trailing
// code point over to the next fragment.
type utf8Decoder struct {
	remainder []byte
}

// decode validates p prefixed by any carried remainder and returns the
// decoded text. With final set, leftover bytes are an error.
func (d *utf8Decoder) decode(p []byte, final bool) (string, error) {
	data := p
	if len(d.remainder) > 0 {
		data = make([]byte, 0, len(d.remainder)+len(p))
		data = append(data, d.remainder...)
		data = append(data, p...)
		d.remainder = nil
	}

	i := 0
	for i < len(data) {
		if data[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(data[i:]) {
				break // truncated code point at the end of this fragment
			}
			return "", &Utf8DecodingError{msg: "Illegal UTF-8 Sequence"}
		}
		i += size
	}

	if i < len(data) {
		if final {
			return "", &Utf8DecodingError{msg: "Final UTF-8 fragment received, but not all bytes consumed by decode process"}
		}
		d.remainder = append([]byte(nil), data[i:]...)
	}
	return string(data[:i]), nil
}

// reset drops any carried bytes.
func (d *utf8Decoder) reset() { d.remainder = nil }

// pending returns the number of carried bytes.
func (d *utf8Decoder) pending() int { return len(d.remainder) }

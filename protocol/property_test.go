package protocol

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var dataOpcodes = []byte{OpcodeText, OpcodeBinary}

// Round trip: unframe(frame(F)) reproduces fin, rsv, opcode and payload.
func TestProperty_FrameRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("frame then unframe is identity on frame bits", prop.ForAll(
		func(opIdx int, rsv1, rsv2, rsv3, masked bool, key uint32, payload []byte) bool {
			f := NewFrameBuilder().
				Opcode(dataOpcodes[opIdx]).Fin(true).
				Rsv1(rsv1).Rsv2(rsv2).Rsv3(rsv3).
				MaskingKey(key).PayloadData(payload).MustBuild()
			wire, err := NewCodec(masked, 0).Frame(f)
			if err != nil {
				return false
			}
			got, n, err := NewCodec(false, 0).Unframe(wire)
			if err != nil || got == nil || n != len(wire) {
				return false
			}
			return got.IsFin() && got.Opcode() == f.Opcode() &&
				got.IsRsv1() == rsv1 && got.IsRsv2() == rsv2 && got.IsRsv3() == rsv3 &&
				got.IsMask() == masked && bytes.Equal(got.Payload(), payload)
		},
		gen.IntRange(0, len(dataOpcodes)-1),
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
		gen.UInt32(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("large payloads use the extended length forms", prop.ForAll(
		func(size int, masked bool) bool {
			payload := bytes.Repeat([]byte{0x5A}, size)
			wire, err := NewCodec(masked, 0).Frame(NewBinaryFrame(payload, false, true))
			if err != nil {
				return false
			}
			got, _, err := NewCodec(false, 0).Unframe(wire)
			return err == nil && got != nil && bytes.Equal(got.Payload(), payload)
		},
		gen.IntRange(120, 70000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Feeding a frame in arbitrary chunks yields the same frame as feeding it whole.
func TestProperty_IncrementalParsing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("chunked unframe equals whole unframe", prop.ForAll(
		func(payload []byte, chunk int, masked bool) bool {
			wire, _ := NewCodec(masked, 0).Frame(NewBinaryFrame(payload, false, true))
			whole, _, err := NewCodec(false, 0).Unframe(wire)
			if err != nil || whole == nil {
				return false
			}

			c := NewCodec(false, 0)
			var buf []byte
			var got *Frame
			for off := 0; off < len(wire); off += chunk {
				end := off + chunk
				if end > len(wire) {
					end = len(wire)
				}
				buf = append(buf, wire[off:end]...)
				f, n, err := c.Unframe(buf)
				if err != nil {
					return false
				}
				buf = buf[n:]
				if f != nil {
					if got != nil || end != len(wire) {
						return false
					}
					got = f
				}
			}
			return got != nil && len(buf) == 0 &&
				bytes.Equal(got.Payload(), whole.Payload()) &&
				got.MaskingKey() == whole.MaskingKey()
		},
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(1, 17),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Masking twice with the same key restores the input, across any split.
func TestProperty_MaskInvolution(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("mask then unmask in two chunks is identity", prop.ForAll(
		func(key uint32, data []byte, split int) bool {
			if split > len(data) {
				split = len(data)
			}
			masked := make([]byte, len(data))
			NewMasker(key).Mask(masked, 0, data, len(data))

			m := NewMasker(key)
			m.SetSource(masked)
			head := m.Unmask(split)
			tail := m.Unmask(len(data) - split)
			return bytes.Equal(append(head, tail...), data)
		},
		gen.UInt32(),
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}

// A text message split inside a code point decodes to the unsplit text.
func TestProperty_Utf8Split(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("split decode equals whole decode", prop.ForAll(
		func(s string, at int) bool {
			if !utf8.ValidString(s) {
				return true
			}
			b := []byte(s)
			if at > len(b) {
				at = len(b)
			}
			var d utf8Decoder
			head, err := d.decode(b[:at], false)
			if err != nil {
				return false
			}
			tail, err := d.decode(b[at:], true)
			if err != nil {
				return false
			}
			return head+tail == s && d.pending() == 0
		},
		gen.AnyString(),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}

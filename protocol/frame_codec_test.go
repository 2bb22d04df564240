package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gobwas/ws"
)

// unframeAll feeds data in chunks of the given size and collects frames.
func unframeAll(t *testing.T, c *Codec, data []byte, chunk int) []*Frame {
	t.Helper()
	var frames []*Frame
	var buf []byte
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		buf = append(buf, data[off:end]...)
		for {
			f, n, err := c.Unframe(buf)
			if err != nil {
				t.Fatalf("Unframe: %v", err)
			}
			buf = buf[n:]
			if f == nil {
				break
			}
			frames = append(frames, f)
		}
	}
	if len(buf) != 0 {
		t.Fatalf("%d bytes left unconsumed", len(buf))
	}
	return frames
}

func TestEncodeLengthBoundaries(t *testing.T) {
	cases := []struct {
		n      int
		header []byte
	}{
		{0, []byte{0x82, 0x00}},
		{125, []byte{0x82, 0x7D}},
		{126, []byte{0x82, 0x7E, 0x00, 0x7E}},
		{65535, []byte{0x82, 0x7E, 0xFF, 0xFF}},
		{65536, []byte{0x82, 0x7F, 0, 0, 0, 0, 0, 0x01, 0x00, 0x00}},
	}
	for _, tc := range cases {
		c := NewCodec(false, 0)
		out, err := c.Frame(NewBinaryFrame(make([]byte, tc.n), false, true))
		if err != nil {
			t.Fatalf("n=%d: %v", tc.n, err)
		}
		if !bytes.Equal(out[:len(tc.header)], tc.header) {
			t.Errorf("n=%d: header % x, want % x", tc.n, out[:len(tc.header)], tc.header)
		}
		if len(out) != len(tc.header)+tc.n {
			t.Errorf("n=%d: frame length %d, want %d", tc.n, len(out), len(tc.header)+tc.n)
		}
	}
}

func TestHelloFrameBytes(t *testing.T) {
	out, err := NewCodec(false, 0).Frame(NewTextFrame("hello", false, true))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x81, 0x05, 0x68, 0x65, 0x6c, 0x6c, 0x6f}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}
}

func TestMaskedFrameLayout(t *testing.T) {
	f := NewFrameBuilder().Opcode(OpcodeText).Fin(true).MaskingKey(0x37fa213d).PayloadData([]byte("Hello")).MustBuild()
	out, err := NewCodec(true, 0).Frame(f)
	if err != nil {
		t.Fatal(err)
	}
	// RFC 6455 section 5.7 sample.
	want := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}
	frames := unframeAll(t, NewCodec(false, 0), out, len(out))
	if len(frames) != 1 || string(frames[0].Payload()) != "Hello" || !frames[0].IsMask() {
		t.Fatalf("unexpected parse result %v", frames)
	}
	if frames[0].MaskingKey() != 0x37fa213d {
		t.Errorf("masking key %#x", frames[0].MaskingKey())
	}
}

func TestUnframeByteAtATime(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 40)
	f := NewFrameBuilder().Opcode(OpcodeBinary).Fin(true).PayloadData(payload).MustBuild()
	wire, _ := NewCodec(true, 0).Frame(f)

	c := NewCodec(false, 0)
	var buf []byte
	for i, b := range wire {
		buf = append(buf, b)
		got, n, err := c.Unframe(buf)
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		buf = buf[n:]
		if i < len(wire)-1 && got != nil {
			t.Fatalf("frame returned early at byte %d", i)
		}
		if i == len(wire)-1 {
			if got == nil {
				t.Fatal("no frame after the last byte")
			}
			if !bytes.Equal(got.Payload(), payload) {
				t.Fatal("payload mismatch")
			}
		}
	}
}

func TestUnframeTwoFramesInOneRead(t *testing.T) {
	c := NewCodec(false, 0)
	a, _ := c.Frame(NewTextFrame("one", false, true))
	b, _ := c.Frame(NewTextFrame("two", false, true))
	frames := unframeAll(t, NewCodec(false, 0), append(a, b...), len(a)+len(b))
	if len(frames) != 2 || string(frames[0].Payload()) != "one" || string(frames[1].Payload()) != "two" {
		t.Fatalf("unexpected frames %v", frames)
	}
}

func TestUnframeErrors(t *testing.T) {
	cases := []struct {
		name string
		max  int64
		data []byte
		code CloseCode
		msg  string
	}{
		{"fragmented ping", 0, []byte{0x09, 0x00}, CloseProtocolError, "Fragmented control frame"},
		{"extended control length", 0, []byte{0x89, 0x7E, 0x00, 0x7E}, CloseProtocolError, "Control frame payloads must be no greater than 125 bytes"},
		{"oversized payload", 10, []byte{0x82, 0x0B}, CloseTooBig, ""},
		{"length msb", 0, []byte{0x82, 0x7F, 0x80, 0, 0, 0, 0, 0, 0, 0}, CloseProtocolError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCodec(false, tc.max)
			_, _, err := c.Unframe(tc.data)
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("expected protocol error, got %v", err)
			}
			reason, ok := AsFatal(err)
			if !ok || reason.Code != tc.code {
				t.Errorf("close code %v, want %v", reason.Code, tc.code)
			}
			if tc.msg != "" && err.Error() != tc.msg {
				t.Errorf("message %q, want %q", err.Error(), tc.msg)
			}
			if c.state.step != stepHeader {
				t.Error("parser state not recycled after error")
			}
		})
	}
}

func TestOutboundFragmentTracking(t *testing.T) {
	c := NewCodec(false, 0)
	first, err := c.Frame(NewTextFrame("a", false, false))
	if err != nil || first[0] != 0x01 {
		t.Fatalf("first fragment % x, %v", first, err)
	}
	ping, err := c.Frame(NewFrameBuilder().Opcode(OpcodePing).Fin(true).MustBuild())
	if err != nil || ping[0] != 0x89 {
		t.Fatalf("interleaved ping % x, %v", ping, err)
	}
	if _, err := c.Frame(NewBinaryFrame([]byte("x"), false, true)); !errors.Is(err, ErrSendOutOfOrder) {
		t.Fatalf("expected out of order error, got %v", err)
	}
	mid, err := c.Frame(NewTextFrame("b", true, false))
	if err != nil || mid[0] != 0x00 {
		t.Fatalf("middle fragment % x, %v", mid, err)
	}
	last, err := c.Frame(NewTextFrame("c", true, true))
	if err != nil || last[0] != 0x80 {
		t.Fatalf("last fragment % x, %v", last, err)
	}
	if c.Fragmenting() {
		t.Fatal("fragment tracking not cleared")
	}
	if _, err := c.Frame(NewTextFrame("d", true, true)); err == nil {
		t.Fatal("continuation without an open message must fail")
	}
}

func TestRsvBitsSerialized(t *testing.T) {
	f := NewFrameBuilder().Opcode(OpcodeBinary).Fin(true).Rsv1(true).Rsv3(true).MustBuild()
	out, _ := NewCodec(false, 0).Frame(f)
	if out[0] != 0x80|0x40|0x10|0x02 {
		t.Fatalf("first byte %#x", out[0])
	}
	got := unframeAll(t, NewCodec(false, 0), out, 1)[0]
	if !got.IsRsv1() || got.IsRsv2() || !got.IsRsv3() || got.Opcode() != OpcodeBinary {
		t.Fatalf("rsv bits lost: %v", got)
	}
}

func TestExtensionOrder(t *testing.T) {
	var trace []string
	a := &tracingExtension{name: "a", trace: &trace}
	b := &tracingExtension{name: "b", trace: &trace}
	c := NewCodec(false, 0)
	c.SetExtensions([]Extension{a, b})

	if _, err := c.Frame(NewTextFrame("x", false, true)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ProcessIncoming(NewTextFrame("x", false, true)); err != nil {
		t.Fatal(err)
	}
	want := []string{"out:b", "out:a", "in:a", "in:b"}
	if len(trace) != len(want) {
		t.Fatalf("trace %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace %v, want %v", trace, want)
		}
	}
	exts := c.Extensions()
	if exts[0].Name() != "a" || exts[1].Name() != "b" {
		t.Errorf("Extensions() not in negotiation order")
	}
}

type tracingExtension struct {
	name  string
	trace *[]string
}

func (e *tracingExtension) Name() string { return e.name }
func (e *tracingExtension) ProcessIncoming(_ *ExtensionContext, f *Frame) (*Frame, error) {
	*e.trace = append(*e.trace, "in:"+e.name)
	return f, nil
}
func (e *tracingExtension) ProcessOutgoing(_ *ExtensionContext, f *Frame) (*Frame, error) {
	*e.trace = append(*e.trace, "out:"+e.name)
	return f, nil
}

func TestCodecAgainstGobwas(t *testing.T) {
	t.Run("ours read by gobwas", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0xAB}, 300)
		f := NewFrameBuilder().Opcode(OpcodeBinary).Fin(true).PayloadData(payload).MustBuild()
		wire, err := NewCodec(true, 0).Frame(f)
		if err != nil {
			t.Fatal(err)
		}
		wf, err := ws.ReadFrame(bytes.NewReader(wire))
		if err != nil {
			t.Fatalf("gobwas ReadFrame: %v", err)
		}
		if !wf.Header.Fin || wf.Header.OpCode != ws.OpBinary || !wf.Header.Masked {
			t.Fatalf("unexpected header %+v", wf.Header)
		}
		ws.Cipher(wf.Payload, wf.Header.Mask, 0)
		if !bytes.Equal(wf.Payload, payload) {
			t.Fatal("payload mismatch after unmasking")
		}
	})
	t.Run("gobwas read by ours", func(t *testing.T) {
		var buf bytes.Buffer
		msg := bytes.Repeat([]byte("z"), 70000)
		if err := ws.WriteFrame(&buf, ws.MaskFrame(ws.NewBinaryFrame(append([]byte(nil), msg...)))); err != nil {
			t.Fatal(err)
		}
		if err := ws.WriteFrame(&buf, ws.NewPingFrame([]byte("p"))); err != nil {
			t.Fatal(err)
		}
		frames := unframeAll(t, NewCodec(false, 0), buf.Bytes(), 1000)
		if len(frames) != 2 {
			t.Fatalf("got %d frames", len(frames))
		}
		if !bytes.Equal(frames[0].Payload(), msg) || frames[0].Opcode() != OpcodeBinary {
			t.Fatal("binary frame mismatch")
		}
		if frames[1].Opcode() != OpcodePing || string(frames[1].Payload()) != "p" {
			t.Fatal("ping frame mismatch")
		}
	})
}

func TestBuilderRejectsShortPayload(t *testing.T) {
	_, err := NewFrameBuilder().PayloadLength(10).PayloadData([]byte("abc")).Build()
	if err == nil {
		t.Fatal("expected error for payload length beyond data")
	}
	f := NewFrameBuilder().PayloadData([]byte("abcdef")).PayloadLength(3).MustBuild()
	if string(f.Payload()) != "abc" {
		t.Fatalf("payload %q", f.Payload())
	}
}

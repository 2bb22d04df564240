package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/fake"
)

func dataFrame(op byte, fin bool, payload string) *Frame {
	return NewFrameBuilder().Opcode(op).Fin(fin).PayloadData([]byte(payload)).MustBuild()
}

func TestProcessFragmentationRules(t *testing.T) {
	cases := []struct {
		name   string
		frames []*Frame
		msg    string
	}{
		{"continuation without start", []*Frame{dataFrame(OpcodeContinuation, true, "x")},
			"End fragment sent, but wasn't processing any previous fragments"},
		{"new message inside fragments", []*Frame{dataFrame(OpcodeText, false, "a"), dataFrame(OpcodeBinary, true, "b")},
			"Fragment sent but opcode was not 0"},
		{"rsv without extension", []*Frame{NewFrameBuilder().Opcode(OpcodeText).Fin(true).Rsv2(true).MustBuild()},
			"RSV bit(s) incorrectly set"},
		{"reserved opcode", []*Frame{dataFrame(0x3, true, "")}, "Unknown opcode 0x3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(api.RoleServer, 0)
			var err error
			for _, f := range tc.frames {
				if _, err = h.Process(f); err != nil {
					break
				}
			}
			if !errors.Is(err, ErrProtocol) || err.Error() != tc.msg {
				t.Fatalf("got %v, want %q", err, tc.msg)
			}
		})
	}
}

func TestProcessControlFrameInsideFragments(t *testing.T) {
	h := NewHandler(api.RoleServer, 0)
	if _, err := h.Process(dataFrame(OpcodeBinary, false, "ab")); err != nil {
		t.Fatal(err)
	}
	tf, err := h.Process(dataFrame(OpcodePing, true, "p"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tf.(*PingFrame); !ok {
		t.Fatalf("got %T, want *PingFrame", tf)
	}
	tf, err = h.Process(dataFrame(OpcodeContinuation, true, "cd"))
	if err != nil {
		t.Fatal(err)
	}
	bf, ok := tf.(*BinaryFrame)
	if !ok || !bf.Continuation || !bf.Last || string(bf.Data) != "cd" {
		t.Fatalf("unexpected continuation %#v", tf)
	}
	if _, err := h.Process(dataFrame(OpcodeText, true, "next")); err != nil {
		t.Fatalf("tracking not cleared: %v", err)
	}
}

func TestProcessUtf8AcrossFragments(t *testing.T) {
	h := NewHandler(api.RoleServer, 0)
	euro := "€" // e2 82 ac
	tf, err := h.Process(dataFrame(OpcodeText, false, "a"+euro[:2]))
	if err != nil {
		t.Fatal(err)
	}
	if got := tf.(*TextFrame).Text; got != "a" {
		t.Fatalf("first fragment %q", got)
	}
	tf, err = h.Process(dataFrame(OpcodeContinuation, true, euro[2:]+"b"))
	if err != nil {
		t.Fatal(err)
	}
	if got := tf.(*TextFrame).Text; got != euro+"b" {
		t.Fatalf("last fragment %q", got)
	}
}

func TestProcessUtf8Errors(t *testing.T) {
	h := NewHandler(api.RoleServer, 0)
	_, err := h.Process(dataFrame(OpcodeText, true, "ok\xe2\x82"))
	var de *Utf8DecodingError
	if !errors.As(err, &de) || de.Error() != "Final UTF-8 fragment received, but not all bytes consumed by decode process" {
		t.Fatalf("truncated final fragment: %v", err)
	}
	if r, _ := AsFatal(err); r.Code != CloseNotConsistent {
		t.Errorf("close code %v", r.Code)
	}

	h = NewHandler(api.RoleServer, 0)
	if _, err := h.Process(dataFrame(OpcodeText, false, "\xff")); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("malformed byte: %v", err)
	}
	// state is reset after the error
	if _, err := h.Process(dataFrame(OpcodeText, true, "fine")); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestProcessClosePayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		code    CloseCode
		phrase  string
		wantErr bool
	}{
		{"empty", "", CloseNoStatusCode, "", false},
		{"normal", "\x03\xe8bye", CloseNormalClosure, "bye", false},
		{"one byte", "\x03", 0, "", true},
		{"reserved code", "\x03\xed", 0, "", true},
		{"application code", "\x0f\xa0", 4000, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(api.RoleServer, 0)
			tf, err := h.Process(dataFrame(OpcodeClose, true, tc.payload))
			if tc.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("expected protocol error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			cf := tf.(*CloseFrame)
			if cf.Reason.Code != tc.code || cf.Reason.Phrase != tc.phrase {
				t.Fatalf("got %v", cf.Reason)
			}
		})
	}
}

func TestSendWritesFrames(t *testing.T) {
	tr := fake.NewTransport()
	h := NewHandler(api.RoleServer, 0)
	h.SetWriter(tr)

	fut := h.SendText("hello (echo)")
	f, err := fut.Get(context.Background())
	if err != nil || f == nil {
		t.Fatalf("Get: %v", err)
	}
	sent := tr.GetSentData()
	if len(sent) != 1 || sent[0][0] != 0x81 || string(sent[0][2:]) != "hello (echo)" {
		t.Fatalf("sent % x", sent)
	}
}

func TestStreamInterleavingRejected(t *testing.T) {
	tr := fake.NewTransport()
	h := NewHandler(api.RoleServer, 0)
	h.SetWriter(tr)

	if err := h.StreamText(false, "a").Err(); err != nil {
		t.Fatal(err)
	}
	if err := h.StreamBinary(false, []byte("b")).Err(); !errors.Is(err, ErrSendOutOfOrder) {
		t.Fatalf("interleaved stream: %v", err)
	}
	if err := h.SendBinary([]byte("c")).Err(); !errors.Is(err, ErrSendOutOfOrder) {
		t.Fatalf("whole message during stream: %v", err)
	}
	if err := h.SendPing([]byte("p")).Err(); err != nil {
		t.Fatalf("ping during stream: %v", err)
	}
	if err := h.StreamText(true, "d").Err(); err != nil {
		t.Fatal(err)
	}
	sent := tr.GetSentData()
	heads := []byte{sent[0][0], sent[1][0], sent[2][0]}
	if heads[0] != 0x01 || heads[1] != 0x89 || heads[2] != 0x80 {
		t.Fatalf("frame heads % x", heads)
	}
}

func TestCloseReplacesLocalOnlyCodes(t *testing.T) {
	tr := fake.NewTransport()
	h := NewHandler(api.RoleServer, 0)
	h.SetWriter(tr)
	var got []CloseReason
	h.SetCloseListener(func(r CloseReason) { got = append(got, r) })

	if err := h.Close(NewCloseReason(CloseNoStatusCode, "gone")).Err(); err != nil {
		t.Fatal(err)
	}
	sent := tr.GetSentData()
	if len(sent) != 1 || sent[0][0] != 0x88 || sent[0][2] != 0x03 || sent[0][3] != 0xE8 {
		t.Fatalf("close frame % x", sent)
	}
	if len(got) != 1 || got[0].Code != CloseNoStatusCode || got[0].Phrase != "gone" {
		t.Fatalf("notifications %v", got)
	}
	h.Close(NewCloseReason(CloseNormalClosure, "again"))
	if h.NotifyClosed(NewCloseReason(CloseGoingAway, "")) || len(got) != 1 {
		t.Fatalf("close notification fired more than once: %v", got)
	}
}

func TestCloseNotificationOutcomes(t *testing.T) {
	t.Run("client completion waits for peer", func(t *testing.T) {
		h := NewHandler(api.RoleClient, 0)
		h.SetWriter(fake.NewTransport())
		fired := 0
		h.SetCloseListener(func(CloseReason) { fired++ })
		h.Close(NewCloseReason(CloseNormalClosure, ""))
		if fired != 0 {
			t.Fatal("client notified on write completion")
		}
	})
	t.Run("failure notifies", func(t *testing.T) {
		tr := fake.NewTransport()
		tr.SetSendError(errors.New("broken pipe"))
		h := NewHandler(api.RoleClient, 0)
		h.SetWriter(tr)
		fired := 0
		h.SetCloseListener(func(CloseReason) { fired++ })
		if err := h.Close(NewCloseReason(CloseNormalClosure, "")).Err(); err == nil {
			t.Fatal("expected failure")
		}
		if fired != 1 {
			t.Fatalf("fired %d times", fired)
		}
	})
	t.Run("cancellation notifies", func(t *testing.T) {
		tr := fake.NewTransport()
		tr.Hold()
		h := NewHandler(api.RoleServer, 0)
		h.SetWriter(tr)
		fired := 0
		h.SetCloseListener(func(CloseReason) { fired++ })
		fut := h.Close(NewCloseReason(CloseGoingAway, ""))
		if fired != 0 {
			t.Fatal("notified before the write resolved")
		}
		tr.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := fut.Get(ctx); !errors.Is(err, api.ErrWriteCancelled) {
			t.Fatalf("Get: %v", err)
		}
		if fired != 1 {
			t.Fatalf("fired %d times", fired)
		}
	})
}

func TestSendWithoutWriter(t *testing.T) {
	h := NewHandler(api.RoleServer, 0)
	if err := h.SendText("x").Err(); !errors.Is(err, api.ErrTransportClosed) {
		t.Fatalf("got %v", err)
	}
	if err := h.SendPing(make([]byte, 126)).Err(); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("oversized ping: %v", err)
	}
}

func TestFutureGetHonoursContext(t *testing.T) {
	tr := fake.NewTransport()
	tr.Hold()
	h := NewHandler(api.RoleServer, 0)
	h.SetWriter(tr)
	fut := h.SendBinary([]byte{1, 2, 3})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := fut.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	tr.Release()
	if _, err := fut.Get(context.Background()); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestNothingWrittenAfterCloseFrame(t *testing.T) {
	tr := fake.NewTransport()
	h := NewHandler(api.RoleClient, 0)
	h.SetWriter(tr)
	fired := 0
	h.SetCloseListener(func(CloseReason) { fired++ })

	if err := h.Close(NewCloseReason(CloseNormalClosure, "bye")).Err(); err != nil {
		t.Fatal(err)
	}
	if !h.CloseSent() {
		t.Fatal("close frame not recorded")
	}
	sends := map[string]*Future{
		"text":   h.SendText("after"),
		"binary": h.SendBinary([]byte("after")),
		"ping":   h.SendPing(nil),
		"stream": h.StreamText(false, "a"),
		"raw":    h.SendRaw([]byte{0x81, 0x00}),
		"close":  h.Close(NewCloseReason(CloseGoingAway, "")),
	}
	for name, fut := range sends {
		if err := fut.Err(); !errors.Is(err, api.ErrSessionClosed) {
			t.Errorf("%s after close: %v", name, err)
		}
	}
	sent := tr.GetSentData()
	if len(sent) != 1 || sent[0][0] != 0x88 {
		t.Fatalf("frames written after close: % x", sent)
	}
	if fired != 0 {
		t.Fatalf("second close notified %d times", fired)
	}
}

func TestCloseRejectsInvalidReason(t *testing.T) {
	tr := fake.NewTransport()
	h := NewHandler(api.RoleServer, 0)
	h.SetWriter(tr)
	fired := 0
	h.SetCloseListener(func(CloseReason) { fired++ })

	long := NewCloseReason(CloseNormalClosure, strings.Repeat("x", MaxCloseReasonLen+1))
	if err := h.Close(long).Err(); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("long phrase: %v", err)
	}
	if h.CloseSent() || len(tr.GetSentData()) != 0 || fired != 0 {
		t.Fatal("rejected close left state behind")
	}
	if err := h.Close(NewCloseReason(CloseNormalClosure, "bye")).Err(); err != nil {
		t.Fatalf("close after rejection: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired %d times", fired)
	}
}

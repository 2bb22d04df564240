package endpoint_test

import (
	"bytes"
	"compress/flate"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/endpoint"
	"github.com/momentics/wsengine/fake"
	"github.com/momentics/wsengine/protocol"
)

func TestBroadcastSharesPlainFrames(t *testing.T) {
	w := endpoint.NewWrapper(newRecorder(nil), endpoint.WithExtensions(protocol.NewDeflate(flate.BestSpeed, 0)))
	plainA, plainB, compressed := fake.NewTransport(), fake.NewTransport(), fake.NewTransport()
	for _, tr := range []*fake.Transport{plainA, plainB} {
		if _, err := w.Open(tr, endpoint.Metadata{}); err != nil {
			t.Fatal(err)
		}
	}
	cc, err := w.Open(compressed, endpoint.Metadata{
		Negotiated: protocol.Negotiated{Extensions: []string{protocol.DeflateExtensionName}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if exts := cc.Session().NegotiatedExtensions(); len(exts) != 1 || exts[0] != protocol.DeflateExtensionName {
		t.Fatalf("extensions %v", exts)
	}

	futures := w.Broadcast("news")
	if len(futures) != 3 {
		t.Fatalf("%d futures", len(futures))
	}
	for id, f := range futures {
		if err := f.Err(); err != nil {
			t.Fatalf("session %s: %v", id, err)
		}
	}
	want := append([]byte{0x81, 0x04}, "news"...)
	for _, tr := range []*fake.Transport{plainA, plainB} {
		if got := tr.Bytes(); !bytes.Equal(got, want) {
			t.Fatalf("plain session got % x", got)
		}
	}
	if got := compressed.Bytes(); len(got) == 0 || got[0] != 0xc1 {
		t.Fatalf("extension session got % x", got)
	}
}

func TestBroadcastSkipsClosedSessions(t *testing.T) {
	w := endpoint.NewWrapper(newRecorder(nil))
	c, _ := w.Open(fake.NewTransport(), endpoint.Metadata{})
	_, _ = w.Open(fake.NewTransport(), endpoint.Metadata{})
	c.TransportClosed(nil)

	if n := len(w.BroadcastBinary([]byte{1})); n != 1 {
		t.Fatalf("%d futures", n)
	}
	if _, ok := w.Session(c.Session().ID()); ok {
		t.Fatal("closed session still registered")
	}
	if w.Control().Stats()["sessions.closed"] != int64(1) {
		t.Error("sessions.closed not counted")
	}
}

func TestControlReloadAppliesToNewSessions(t *testing.T) {
	w := endpoint.NewWrapper(newRecorder(nil))
	err := w.Control().SetConfig(map[string]any{
		endpoint.KeyMaxTextMessageBufferSize: 4,
		endpoint.KeyIdleTimeout:              "1m",
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := w.Config()
	if cfg.MaxTextMessageBufferSize != 4 || cfg.IdleTimeout != time.Minute {
		t.Fatalf("config %+v", cfg)
	}
	c, _ := w.Open(fake.NewTransport(), endpoint.Metadata{})
	s := c.Session()
	if s.MaxTextMessageBufferSize() != 4 || s.MaxIdleTimeout() != time.Minute {
		t.Fatalf("session limits %d, %v", s.MaxTextMessageBufferSize(), s.MaxIdleTimeout())
	}

	err = w.Control().SetConfig(map[string]any{
		endpoint.KeyMaxBinaryMessageBufferSize: []int{1},
		endpoint.KeyMaxTextMessageBufferSize:   "-3",
	})
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("invalid values: %v", err)
	}
	cfg = w.Config()
	if cfg.MaxBinaryMessageBufferSize != endpoint.DefaultConfig().MaxBinaryMessageBufferSize || cfg.MaxTextMessageBufferSize != 4 {
		t.Fatalf("invalid value applied: %+v", cfg)
	}
	s.SetMaxIdleTimeout(0)
}

func TestSessionMetadataAndProperties(t *testing.T) {
	u, _ := url.Parse("ws://example.com/chat/42?lang=en")
	var other *endpoint.Session
	w := endpoint.NewWrapper(newRecorder(nil))
	first, _ := w.Open(fake.NewTransport(), endpoint.Metadata{})
	other = first.Session()

	c, err := w.Open(fake.NewTransport(), endpoint.Metadata{
		RequestURI: u,
		PathParams: map[string]string{"room": "42"},
		Principal:  "alice",
		Secure:     true,
		Negotiated: protocol.Negotiated{Subprotocol: "chat.v1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := c.Session()
	if s.QueryString() != "lang=en" || s.PathParameters()["room"] != "42" ||
		s.UserPrincipal() != "alice" || !s.IsSecure() || s.NegotiatedSubprotocol() != "chat.v1" {
		t.Fatal("metadata not exposed")
	}
	if s.ID() == other.ID() || len(s.ID()) != 36 {
		t.Fatalf("ids %q %q", s.ID(), other.ID())
	}
	if len(s.OpenSessions()) != 2 {
		t.Fatalf("open sessions %d", len(s.OpenSessions()))
	}

	s.Properties().Set("user", 7)
	if v, ok := s.Properties().Get("user"); !ok || v != 7 {
		t.Fatalf("property %v", v)
	}
	if s.State() != api.StateRunning {
		t.Fatalf("state %v", s.State())
	}
}

func TestWrapperOpenRejectsNilWriter(t *testing.T) {
	w := endpoint.NewWrapper(newRecorder(nil))
	if _, err := w.Open(nil, endpoint.Metadata{}); err == nil {
		t.Fatal("nil writer accepted")
	}
}

func TestSendPartialMessages(t *testing.T) {
	tr := fake.NewTransport()
	w := endpoint.NewWrapper(newRecorder(nil))
	c, _ := w.Open(tr, endpoint.Metadata{})
	s := c.Session()

	s.SendPartialText("ab", false)
	if err := s.SendPartialBinary([]byte("x"), true).Err(); err == nil {
		t.Fatal("binary fragment accepted while text is streaming")
	}
	s.SendPartialText("c", true)
	sent := tr.GetSentData()
	if len(sent) != 2 || sent[0][0] != 0x01 || sent[1][0] != 0x80 {
		t.Fatalf("frames %v", sent)
	}
}

package endpoint_test

import (
	"sync"

	"github.com/momentics/wsengine/endpoint"
	"github.com/momentics/wsengine/protocol"
)

// recorder collects endpoint callbacks.
type recorder struct {
	mu     sync.Mutex
	open   func(s *endpoint.Session)
	closes []protocol.CloseReason
	errs   []error
	closed chan protocol.CloseReason
}

func newRecorder(open func(s *endpoint.Session)) *recorder {
	return &recorder{open: open, closed: make(chan protocol.CloseReason, 4)}
}

func (r *recorder) OnOpen(s *endpoint.Session) {
	if r.open != nil {
		r.open(s)
	}
}

func (r *recorder) OnClose(_ *endpoint.Session, reason protocol.CloseReason) {
	r.mu.Lock()
	r.closes = append(r.closes, reason)
	r.mu.Unlock()
	r.closed <- reason
}

func (r *recorder) OnError(_ *endpoint.Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) closeReasons() []protocol.CloseReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.CloseReason(nil), r.closes...)
}

// frame serializes an unmasked client frame.
func frame(op byte, fin bool, payload string) []byte {
	f := protocol.NewFrameBuilder().Opcode(op).Fin(fin).PayloadData([]byte(payload)).MustBuild()
	return protocol.EncodeFrame(f, false)
}

// maskedFrame serializes a masked client frame.
func maskedFrame(op byte, fin bool, payload string) []byte {
	f := protocol.NewFrameBuilder().Opcode(op).Fin(fin).PayloadData([]byte(payload)).MustBuild()
	return protocol.EncodeFrame(f, true)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// File: endpoint/session.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session is the application's view of one WebSocket connection.

package endpoint

import (
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/internal/session"
	"github.com/momentics/wsengine/protocol"
)

// IdleTimeoutPhrase is the close reason sent when a session idles out.
const IdleTimeoutPhrase = "Session closed by the container because of the idle timeout."

// Metadata describes the upgrade request a session came from.
type Metadata struct {
	RequestURI *url.URL
	PathParams map[string]string
	Principal  string
	Secure     bool
	// Negotiated holds what the handshake agreed on.
	Negotiated protocol.Negotiated
}

// Session is created by Wrapper.Open and owned by its Connection.
type Session struct {
	id       string
	conn     *Connection
	proto    *protocol.Handler
	wrapper  *Wrapper
	meta     Metadata
	handlers *handlerTable
	props    *session.ContextStore
	life     *session.Lifecycle
	limiter  *rate.Limiter
	state    atomic.Int32

	maxText   atomic.Int64
	maxBinary atomic.Int64

	idleMu      sync.Mutex
	idleTimeout time.Duration
	idleTimer   *time.Timer
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the reception state.
func (s *Session) State() api.ReceptionState {
	return api.ReceptionState(s.state.Load())
}

// IsOpen reports whether the session has not reached CLOSED.
func (s *Session) IsOpen() bool { return s.State() != api.StateClosed }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.life.Done() }

// Properties returns the user property store.
func (s *Session) Properties() api.Properties { return s.props }

// RequestURI returns the upgrade request URI, if known.
func (s *Session) RequestURI() *url.URL { return s.meta.RequestURI }

// QueryString returns the raw query of the request URI.
func (s *Session) QueryString() string {
	if s.meta.RequestURI == nil {
		return ""
	}
	return s.meta.RequestURI.RawQuery
}

// PathParameters returns the path parameters matched at upgrade.
func (s *Session) PathParameters() map[string]string { return s.meta.PathParams }

// UserPrincipal returns the authenticated principal name.
func (s *Session) UserPrincipal() string { return s.meta.Principal }

// IsSecure reports whether the connection runs over TLS.
func (s *Session) IsSecure() bool { return s.meta.Secure }

// NegotiatedSubprotocol returns the agreed subprotocol or "".
func (s *Session) NegotiatedSubprotocol() string { return s.meta.Negotiated.Subprotocol }

// NegotiatedExtensions returns the active extensions in negotiation order.
func (s *Session) NegotiatedExtensions() []string {
	exts := s.proto.Extensions()
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = e.Name()
	}
	return names
}

// OpenSessions returns the open sessions of the same endpoint.
func (s *Session) OpenSessions() []*Session { return s.wrapper.OpenSessions() }

// MaxTextMessageBufferSize returns the text reassembly limit in bytes.
func (s *Session) MaxTextMessageBufferSize() int { return int(s.maxText.Load()) }

// SetMaxTextMessageBufferSize changes the limit for later messages.
func (s *Session) SetMaxTextMessageBufferSize(n int) { s.maxText.Store(int64(n)) }

// MaxBinaryMessageBufferSize returns the binary reassembly limit in bytes.
func (s *Session) MaxBinaryMessageBufferSize() int { return int(s.maxBinary.Load()) }

// SetMaxBinaryMessageBufferSize changes the limit for later messages.
func (s *Session) SetMaxBinaryMessageBufferSize(n int) { s.maxBinary.Store(int64(n)) }

// AddMessageHandler registers h. Registration should happen in OnOpen or
// otherwise before traffic for the handled kind starts.
func (s *Session) AddMessageHandler(h *MessageHandler) error {
	return s.handlers.add(h)
}

// RemoveMessageHandler unregisters h and reports whether it was registered.
func (s *Session) RemoveMessageHandler(h *MessageHandler) bool {
	return s.handlers.remove(h)
}

// MessageHandlers returns every registered handler once, in dispatch order.
func (s *Session) MessageHandlers() []*MessageHandler {
	return s.handlers.ordered()
}

// SendText sends a whole text message.
func (s *Session) SendText(msg string) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.SendText(msg)
}

// SendBinary sends a whole binary message.
func (s *Session) SendBinary(msg []byte) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.SendBinary(msg)
}

// SendPartialText sends one fragment of a text message.
func (s *Session) SendPartialText(fragment string, last bool) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.StreamText(last, fragment)
}

// SendPartialBinary sends one fragment of a binary message.
func (s *Session) SendPartialBinary(fragment []byte, last bool) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.StreamBinary(last, fragment)
}

// SendPing sends a ping.
func (s *Session) SendPing(data []byte) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.SendPing(data)
}

// SendPong sends an unsolicited pong.
func (s *Session) SendPong(data []byte) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.SendPong(data)
}

// sendRaw writes a frame serialized by the caller.
func (s *Session) sendRaw(p []byte) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	s.wrapper.incr("frames.out", 1)
	return s.proto.SendRaw(p)
}

// Close starts the closing handshake with reason.
func (s *Session) Close(reason protocol.CloseReason) *protocol.Future {
	if !s.IsOpen() {
		return protocol.FailedFuture(api.ErrSessionClosed)
	}
	return s.conn.close(reason)
}

// MaxIdleTimeout returns the idle timeout; 0 means none.
func (s *Session) MaxIdleTimeout() time.Duration {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	return s.idleTimeout
}

// SetMaxIdleTimeout changes the idle timeout and restarts the timer.
func (s *Session) SetMaxIdleTimeout(d time.Duration) {
	s.idleMu.Lock()
	s.idleTimeout = d
	s.idleMu.Unlock()
	s.touch()
}

// touch restarts the idle timer.
func (s *Session) touch() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.idleTimeout <= 0 || !s.IsOpen() {
		return
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.Close(protocol.NewCloseReason(protocol.CloseGoingAway, IdleTimeoutPhrase))
	})
}

func (s *Session) stopIdle() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// transition moves to st unless the session is closed.
func (s *Session) transition(st api.ReceptionState) bool {
	for {
		cur := s.state.Load()
		if api.ReceptionState(cur) == api.StateClosed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return true
		}
	}
}

// markClosed enters CLOSED and reports whether this call did so.
func (s *Session) markClosed() bool {
	if api.ReceptionState(s.state.Swap(int32(api.StateClosed))) == api.StateClosed {
		return false
	}
	s.stopIdle()
	s.life.Cancel()
	return true
}

// File: endpoint/wrapper.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wrapper is an endpoint instance: configuration, application callbacks
// and the registry of its open sessions.

package endpoint

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/momentics/wsengine/adapters"
	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/internal/session"
	"github.com/momentics/wsengine/protocol"
)

// Endpoint receives session lifecycle callbacks on the delivering goroutine.
// Errors returned by reader and input-stream handlers are the exception:
// OnError is called from the handler's own goroutine and may run
// concurrently with other callbacks of the same session.
type Endpoint interface {
	OnOpen(s *Session)
	OnClose(s *Session, reason protocol.CloseReason)
	OnError(s *Session, err error)
}

// EndpointFuncs adapts functions to Endpoint; nil fields are skipped.
type EndpointFuncs struct {
	Open  func(s *Session)
	Close func(s *Session, reason protocol.CloseReason)
	Error func(s *Session, err error)
}

func (f EndpointFuncs) OnOpen(s *Session) {
	if f.Open != nil {
		f.Open(s)
	}
}

func (f EndpointFuncs) OnClose(s *Session, reason protocol.CloseReason) {
	if f.Close != nil {
		f.Close(s, reason)
	}
}

func (f EndpointFuncs) OnError(s *Session, err error) {
	if f.Error != nil {
		f.Error(s, err)
	}
}

// Wrapper hosts one endpoint.
type Wrapper struct {
	endpoint Endpoint
	ctrl     *adapters.ControlAdapter
	sessions *session.Registry[*Session]

	mu       sync.RWMutex
	cfg      Config
	decoders *decoderSet
}

// NewWrapper builds an endpoint with DefaultConfig modified by opts.
func NewWrapper(ep Endpoint, opts ...Option) *Wrapper {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	w := &Wrapper{
		endpoint: ep,
		ctrl:     adapters.NewControlAdapter(),
		sessions: session.NewRegistry[*Session](cfg.ShardCount),
		cfg:      cfg,
		decoders: newDecoderSet(cfg.TextDecoders, cfg.BinaryDecoders),
	}
	w.ctrl.RegisterDebugProbe("sessions.open", func() any { return w.sessions.Len() })
	w.ctrl.RegisterConfigKey(KeyMaxTextMessageBufferSize, positiveInt)
	w.ctrl.RegisterConfigKey(KeyMaxBinaryMessageBufferSize, positiveInt)
	w.ctrl.RegisterConfigKey(KeyIdleTimeout, nonNegativeDuration)
	w.ctrl.OnReload(w.reload)
	return w
}

// Config returns the settings applied to new sessions.
func (w *Wrapper) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Control exposes runtime configuration and statistics.
func (w *Wrapper) Control() api.Control { return w.ctrl }

func (w *Wrapper) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg.applyControl(w.ctrl.GetConfig())
}

func (w *Wrapper) incr(key string, delta int64) { w.ctrl.Incr(key, delta) }

// Open binds wr to a new session, registers it and calls OnOpen. The
// returned connection must be fed inbound bytes from one goroutine.
func (w *Wrapper) Open(wr api.Writer, meta Metadata) (*Connection, error) {
	if wr == nil {
		return nil, api.ErrInvalidArgument
	}
	cfg := w.Config()

	proto := protocol.NewHandler(cfg.Role, cfg.MaxFramePayload)
	proto.SetWriter(wr)
	if len(meta.Negotiated.Extensions) > 0 {
		proto.SetExtensions(protocol.ResolveExtensions(meta.Negotiated.Extensions, cfg.Extensions...))
	}

	s := &Session{
		id:          uuid.NewString(),
		proto:       proto,
		wrapper:     w,
		meta:        meta,
		handlers:    newHandlerTable(w.decoders),
		props:       session.NewContextStore(),
		life:        session.NewLifecycle(),
		idleTimeout: cfg.IdleTimeout,
	}
	s.maxText.Store(int64(cfg.MaxTextMessageBufferSize))
	s.maxBinary.Store(int64(cfg.MaxBinaryMessageBufferSize))
	if rl := cfg.RateLimit; rl != nil {
		s.limiter = rate.NewLimiter(rl.MessagesPerSecond, rl.Burst)
	}

	guard := adapters.NewMiddlewareHandler(adapters.Invoker).Use(adapters.RecoveryMiddleware)
	invoke := adapters.NewMiddlewareHandler(adapters.Invoker)
	if cfg.TraceHandlers {
		invoke.Use(adapters.LoggingMiddleware)
	}
	invoke.Use(adapters.RecoveryMiddleware).Use(adapters.MetricsMiddleware(w.incr))

	d := &Dispatcher{
		s:        s,
		endpoint: w.endpoint,
		decoders: w.decoders,
		invoke:   invoke,
		guard:    guard,
		incr:     w.incr,
	}
	c := &Connection{proto: proto, session: s, dispatch: d, wrapper: w}
	s.conn = c

	proto.SetCloseListener(func(reason protocol.CloseReason) {
		d.OnClose(reason)
		if _, ok := w.sessions.Delete(s.id); ok {
			w.incr("sessions.closed", 1)
		}
	})

	if err := w.sessions.Add(s.id, s); err != nil {
		return nil, fmt.Errorf("register session %s: %w", s.id, err)
	}
	w.incr("sessions.opened", 1)

	if err := guard.Handle(func() error {
		w.endpoint.OnOpen(s)
		return nil
	}); err != nil {
		d.reportError(err)
	}
	s.touch()
	return c, nil
}

// Session looks up an open session by ID.
func (w *Wrapper) Session(id string) (*Session, bool) {
	return w.sessions.Get(id)
}

// OpenSessions returns a snapshot of the open sessions.
func (w *Wrapper) OpenSessions() []*Session {
	out := make([]*Session, 0, w.sessions.Len())
	w.sessions.Range(func(_ string, s *Session) {
		if s.IsOpen() {
			out = append(out, s)
		}
	})
	return out
}

// Broadcast sends a text message to every open session. The frame is
// serialized once and shared by sessions that neither mask nor run
// extensions; the others frame their own copy.
func (w *Wrapper) Broadcast(msg string) map[string]*protocol.Future {
	return w.broadcast(protocol.NewTextFrame(msg, false, true), func(s *Session) *protocol.Future {
		return s.SendText(msg)
	})
}

// BroadcastBinary sends a binary message to every open session.
func (w *Wrapper) BroadcastBinary(msg []byte) map[string]*protocol.Future {
	return w.broadcast(protocol.NewBinaryFrame(msg, false, true), func(s *Session) *protocol.Future {
		return s.SendBinary(msg)
	})
}

func (w *Wrapper) broadcast(f *protocol.Frame, send func(*Session) *protocol.Future) map[string]*protocol.Future {
	var shared []byte
	out := make(map[string]*protocol.Future)
	w.sessions.Range(func(id string, s *Session) {
		if !s.IsOpen() {
			return
		}
		if s.proto.Masks() || s.proto.HasExtensions() {
			out[id] = send(s)
			return
		}
		if shared == nil {
			shared = protocol.EncodeFrame(f, false)
		}
		out[id] = s.sendRaw(shared)
	})
	return out
}

// Close closes every open session with reason.
func (w *Wrapper) Close(reason protocol.CloseReason) {
	w.sessions.Range(func(_ string, s *Session) {
		s.Close(reason)
	})
}

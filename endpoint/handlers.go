// File: endpoint/handlers.go
// Package endpoint
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message handler registration. Each handler carries an explicit type tag;
// text, binary and pong handlers each occupy a single slot per session.

package endpoint

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// MessageHandler is a registered message callback. Basic handlers get
// whole messages; partial handlers get every fragment with a last flag.
type MessageHandler struct {
	typ     string
	partial bool
	basic   func(s *Session, msg any) error
	part    func(s *Session, msg any, last bool) error
}

// Type returns the handler's type tag.
func (h *MessageHandler) Type() string { return h.typ }

// IsPartial reports whether the handler receives individual fragments.
func (h *MessageHandler) IsPartial() bool { return h.partial }

func (h *MessageHandler) String() string {
	kind := "basic"
	if h.partial {
		kind = "partial"
	}
	return fmt.Sprintf("MessageHandler[%s,%s]", kind, h.typ)
}

// NewTextHandler handles whole text messages.
func NewTextHandler(fn func(s *Session, msg string) error) *MessageHandler {
	return &MessageHandler{typ: TypeString, basic: func(s *Session, msg any) error {
		return fn(s, msg.(string))
	}}
}

// NewBinaryHandler handles whole binary messages.
func NewBinaryHandler(fn func(s *Session, msg []byte) error) *MessageHandler {
	return &MessageHandler{typ: TypeBytes, basic: func(s *Session, msg any) error {
		return fn(s, msg.([]byte))
	}}
}

// NewPongHandler handles pong application data.
func NewPongHandler(fn func(s *Session, data []byte) error) *MessageHandler {
	return &MessageHandler{typ: TypePong, basic: func(s *Session, msg any) error {
		return fn(s, msg.([]byte))
	}}
}

// NewPartialTextHandler handles text fragments as they arrive.
func NewPartialTextHandler(fn func(s *Session, fragment string, last bool) error) *MessageHandler {
	return &MessageHandler{typ: TypeString, partial: true, part: func(s *Session, msg any, last bool) error {
		return fn(s, msg.(string), last)
	}}
}

// NewPartialBinaryHandler handles binary fragments as they arrive.
func NewPartialBinaryHandler(fn func(s *Session, fragment []byte, last bool) error) *MessageHandler {
	return &MessageHandler{typ: TypeBytes, partial: true, part: func(s *Session, msg any, last bool) error {
		return fn(s, msg.([]byte), last)
	}}
}

// NewReaderHandler streams text messages. fn runs on its own goroutine
// and may read while later fragments are still arriving. An error from fn
// reaches Endpoint.OnError from that goroutine.
func NewReaderHandler(fn func(s *Session, r io.Reader) error) *MessageHandler {
	return &MessageHandler{typ: TypeReader, basic: func(s *Session, msg any) error {
		return fn(s, msg.(io.Reader))
	}}
}

// NewInputStreamHandler streams binary messages like NewReaderHandler,
// with the same goroutine rules.
func NewInputStreamHandler(fn func(s *Session, r io.Reader) error) *MessageHandler {
	return &MessageHandler{typ: TypeInputStream, basic: func(s *Session, msg any) error {
		return fn(s, msg.(io.Reader))
	}}
}

// NewDecodedHandler handles whole messages decoded to typ by a registered
// decoder.
func NewDecodedHandler(typ string, fn func(s *Session, msg any) error) *MessageHandler {
	return &MessageHandler{typ: typ, basic: fn}
}

type slot int

const (
	slotText slot = 1 << iota
	slotBinary
	slotPong
)

// handlerTable holds a session's handlers.
type handlerTable struct {
	mu       sync.RWMutex
	decoders *decoderSet

	text, binary, pong *MessageHandler

	// basic and async are keyed by type tag.
	basic map[string]*MessageHandler
	async map[string]*MessageHandler
	// all keeps registration order.
	all   []*MessageHandler
	slots map[*MessageHandler]slot
}

func newHandlerTable(decoders *decoderSet) *handlerTable {
	return &handlerTable{
		decoders: decoders,
		basic:    make(map[string]*MessageHandler),
		async:    make(map[string]*MessageHandler),
		slots:    make(map[*MessageHandler]slot),
	}
}

// slotsFor resolves which slots h occupies.
func (t *handlerTable) slotsFor(h *MessageHandler) (slot, error) {
	switch h.typ {
	case TypeString, TypeReader:
		if h.partial && h.typ != TypeString {
			return 0, ErrInvalidHandler.WithContext("type", h.typ)
		}
		return slotText, nil
	case TypeBytes, TypeInputStream:
		if h.partial && h.typ != TypeBytes {
			return 0, ErrInvalidHandler.WithContext("type", h.typ)
		}
		return slotBinary, nil
	case TypePong:
		if h.partial {
			return 0, ErrInvalidHandler.WithContext("type", h.typ)
		}
		return slotPong, nil
	}
	if h.partial {
		return 0, ErrInvalidHandler.WithContext("type", h.typ)
	}
	var s slot
	if t.decoders.hasText(h.typ) {
		s |= slotText
	}
	if t.decoders.hasBinary(h.typ) {
		s |= slotBinary
	}
	if s == 0 {
		return 0, ErrDecoderNotFound.WithContext("type", h.typ)
	}
	return s, nil
}

func (t *handlerTable) add(h *MessageHandler) error {
	if h == nil || (h.basic == nil && h.part == nil) || h.typ == "" {
		return ErrInvalidHandler
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.slots[h]; dup {
		return ErrHandlerAlreadyRegistered.WithContext("type", h.typ)
	}
	s, err := t.slotsFor(h)
	if err != nil {
		return err
	}
	if (s&slotText != 0 && t.text != nil) ||
		(s&slotBinary != 0 && t.binary != nil) ||
		(s&slotPong != 0 && t.pong != nil) {
		return ErrHandlerAlreadyRegistered.WithContext("type", h.typ)
	}
	byType := t.basic
	if h.partial {
		byType = t.async
	}
	if _, dup := byType[h.typ]; dup {
		return ErrHandlerAlreadyRegistered.WithContext("type", h.typ)
	}
	byType[h.typ] = h
	if s&slotText != 0 {
		t.text = h
	}
	if s&slotBinary != 0 {
		t.binary = h
	}
	if s&slotPong != 0 {
		t.pong = h
	}
	t.slots[h] = s
	t.all = append(t.all, h)
	return nil
}

func (t *handlerTable) remove(h *MessageHandler) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[h]
	if !ok {
		return false
	}
	delete(t.slots, h)
	if h.partial {
		delete(t.async, h.typ)
	} else {
		delete(t.basic, h.typ)
	}
	if s&slotText != 0 {
		t.text = nil
	}
	if s&slotBinary != 0 {
		t.binary = nil
	}
	if s&slotPong != 0 {
		t.pong = nil
	}
	for i, x := range t.all {
		if x == h {
			t.all = append(t.all[:i:i], t.all[i+1:]...)
			break
		}
	}
	return true
}

// ordered returns every handler once: basic before partial, then more
// specific types before more general ones, ties in registration order.
func (t *handlerTable) ordered() []*MessageHandler {
	t.mu.RLock()
	out := append([]*MessageHandler(nil), t.all...)
	t.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].partial != out[j].partial {
			return !out[i].partial
		}
		return specificity(out[i].typ) > specificity(out[j].typ)
	})
	return out
}

// view is a consistent snapshot of the slots used by one dispatch.
type view struct {
	text, binary, pong *MessageHandler
}

func (t *handlerTable) view() view {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return view{text: t.text, binary: t.binary, pong: t.pong}
}

func (v view) partialText() *MessageHandler {
	if v.text != nil && v.text.partial {
		return v.text
	}
	return nil
}

func (v view) partialBinary() *MessageHandler {
	if v.binary != nil && v.binary.partial {
		return v.binary
	}
	return nil
}

func (v view) readerHandler() *MessageHandler {
	if v.text != nil && !v.text.partial && v.text.typ == TypeReader {
		return v.text
	}
	return nil
}

func (v view) inputStreamHandler() *MessageHandler {
	if v.binary != nil && !v.binary.partial && v.binary.typ == TypeInputStream {
		return v.binary
	}
	return nil
}

func (v view) wholeText() bool   { return v.text != nil && !v.text.partial }
func (v view) wholeBinary() bool { return v.binary != nil && !v.binary.partial }

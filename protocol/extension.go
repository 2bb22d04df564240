// File: protocol/extension.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Extension hook points applied around frame serialization.

package protocol

import "sync"

// Extension transforms frames after they are parsed and before they are
// serialized. Implementations keep per-connection state in the context.
type Extension interface {
	Name() string
	ProcessIncoming(ctx *ExtensionContext, f *Frame) (*Frame, error)
	ProcessOutgoing(ctx *ExtensionContext, f *Frame) (*Frame, error)
}

// ExtensionContext holds per-connection extension state. Incoming and
// outgoing paths run on different goroutines, so access is synchronized.
type ExtensionContext struct {
	props sync.Map
}

// NewExtensionContext returns an empty context.
func NewExtensionContext() *ExtensionContext {
	return &ExtensionContext{}
}

func (c *ExtensionContext) Get(key string) (any, bool) { return c.props.Load(key) }
func (c *ExtensionContext) Set(key string, v any)      { c.props.Store(key, v) }
func (c *ExtensionContext) Delete(key string)          { c.props.Delete(key) }

// File: protocol/negotiation.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reads the outcome of an upgrade performed by an external HTTP layer.
// Only the negotiated subprotocol and extension list are consumed here.

package protocol

import (
	"net/http"
	"strings"
)

const (
	HeaderSecWebSocketProtocol   = "Sec-WebSocket-Protocol"
	HeaderSecWebSocketExtensions = "Sec-WebSocket-Extensions"
)

// Negotiated is what an upgrade response agreed on.
type Negotiated struct {
	Subprotocol string
	// Extensions lists extension tokens in negotiation order.
	Extensions []string
}

// ReadNegotiated extracts the negotiated subprotocol and extension tokens
// from upgrade response headers. Extension parameters are dropped.
func ReadNegotiated(h http.Header) Negotiated {
	n := Negotiated{Subprotocol: strings.TrimSpace(h.Get(HeaderSecWebSocketProtocol))}
	for _, v := range h.Values(HeaderSecWebSocketExtensions) {
		for _, ext := range strings.Split(v, ",") {
			name, _, _ := strings.Cut(ext, ";")
			if name = strings.TrimSpace(name); name != "" {
				n.Extensions = append(n.Extensions, strings.ToLower(name))
			}
		}
	}
	return n
}

// ResolveExtensions maps negotiated tokens onto available implementations,
// keeping negotiation order. Tokens without an implementation are skipped.
func ResolveExtensions(tokens []string, available ...Extension) []Extension {
	var out []Extension
	for _, t := range tokens {
		for _, e := range available {
			if strings.EqualFold(e.Name(), t) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// File: transport/upgrade.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP upgrade and client dial on top of gobwas/ws. The handshake is done
// there; the engine only consumes the negotiated subprotocol and extensions.

package transport

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"slices"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/endpoint"
	"github.com/momentics/wsengine/protocol"
)

// deflateParameters is the only permessage-deflate mode the engine runs.
var deflateParameters = wsflate.Parameters{
	ServerNoContextTakeover: true,
	ClientNoContextTakeover: true,
}

// Upgrader is an http.Handler that upgrades requests and serves each
// connection on the request goroutine until it closes. permessage-deflate
// offers are accepted when the wrapper carries a protocol.Deflate.
type Upgrader struct {
	Wrapper   *endpoint.Wrapper
	Config    Config
	Protocols []string
	// PathParams extracts path parameters for the session metadata.
	PathParams func(r *http.Request) map[string]string
}

func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := ws.HTTPUpgrader{
		Protocol: func(p string) bool { return slices.Contains(u.Protocols, p) },
	}
	if hasDeflate(u.Wrapper.Config()) {
		ext := &wsflate.Extension{Parameters: deflateParameters}
		up.Negotiate = ext.Negotiate
	}
	conn, rw, hs, err := up.Upgrade(r, w)
	if err != nil {
		log.Printf("[transport] upgrade %s failed: %v", r.RemoteAddr, err)
		return
	}
	if err := Tune(conn, u.Config); err != nil {
		log.Printf("[transport] tune %s: %v", conn.RemoteAddr(), err)
	}

	meta := endpoint.Metadata{
		RequestURI: r.URL,
		Secure:     r.TLS != nil,
		Negotiated: negotiated(hs),
	}
	if user, _, ok := r.BasicAuth(); ok {
		meta.Principal = user
	}
	if u.PathParams != nil {
		meta.PathParams = u.PathParams(r)
	}

	nc := NewNetConn(r.Context(), conn, u.Config)
	if rw != nil {
		nc.buffered = drainBuffered(rw.Reader)
	}
	c, err := u.Wrapper.Open(nc, meta)
	if err != nil {
		log.Printf("[transport] open session for %s: %v", r.RemoteAddr, err)
		nc.Close()
		return
	}
	if err := nc.Serve(r.Context(), c); err != nil {
		log.Printf("[transport] session %s ended: %v", c.Session().ID(), err)
	}
}

// Dial connects to urlstr as a client. The wrapper must use api.RoleClient.
// The caller runs Serve on the returned NetConn.
func Dial(ctx context.Context, urlstr string, w *endpoint.Wrapper, cfg Config, protocols ...string) (*endpoint.Connection, *NetConn, error) {
	if w.Config().Role != api.RoleClient {
		return nil, nil, fmt.Errorf("%w: dial needs a client endpoint", api.ErrInvalidArgument)
	}
	u, err := url.Parse(urlstr)
	if err != nil {
		return nil, nil, err
	}
	d := ws.Dialer{Protocols: protocols}
	if hasDeflate(w.Config()) {
		d.Extensions = append(d.Extensions, deflateParameters.Option())
	}
	conn, br, hs, err := d.Dial(ctx, urlstr)
	if err != nil {
		return nil, nil, err
	}
	if err := Tune(conn, cfg); err != nil {
		log.Printf("[transport] tune %s: %v", conn.RemoteAddr(), err)
	}
	nc := NewNetConn(context.WithoutCancel(ctx), conn, cfg)
	if br != nil {
		nc.buffered = drainBuffered(br)
		ws.PutReader(br)
	}
	c, err := w.Open(nc, endpoint.Metadata{
		RequestURI: u,
		Secure:     u.Scheme == "wss",
		Negotiated: negotiated(hs),
	})
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return c, nc, nil
}

func hasDeflate(cfg endpoint.Config) bool {
	return slices.ContainsFunc(cfg.Extensions, func(e protocol.Extension) bool {
		return e.Name() == protocol.DeflateExtensionName
	})
}

func negotiated(hs ws.Handshake) protocol.Negotiated {
	n := protocol.Negotiated{Subprotocol: hs.Protocol}
	for _, opt := range hs.Extensions {
		n.Extensions = append(n.Extensions, string(opt.Name))
	}
	return n
}

// drainBuffered copies what the handshake reader read past the response.
func drainBuffered(br *bufio.Reader) []byte {
	k := br.Buffered()
	if k == 0 {
		return nil
	}
	p, _ := br.Peek(k)
	out := append([]byte(nil), p...)
	_, _ = br.Discard(k)
	return out
}

var (
	_ api.Writer   = (*NetConn)(nil)
	_ Receiver     = (*endpoint.Connection)(nil)
	_ http.Handler = (*Upgrader)(nil)
	_ net.Listener = (*Listener)(nil)
)

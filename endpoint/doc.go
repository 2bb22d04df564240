// Package endpoint
// Author: momentics <momentics@gmail.com>
//
// Session layer above the protocol engine: handler registration, message
// reassembly, decoder selection and the per-session reception state
// machine (running, receiving text, receiving binary, closed).
//
// A Wrapper holds endpoint-wide configuration and the registry of open
// sessions. Wrapper.Open binds a transport writer to a new Connection,
// which owns the protocol handler and the Session; inbound bytes are pushed
// with Connection.Feed from a single goroutine per connection.
package endpoint

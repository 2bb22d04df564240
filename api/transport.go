// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the outbound transport abstraction the protocol engine writes to.
// transport.NetConn implements it over TCP; tests use fake.Transport.

package api

// CompletionHandler receives the terminal outcome of one asynchronous write.
// Exactly one of the methods is called, exactly once.
type CompletionHandler interface {
	Completed(n int)
	Failed(err error)
	Cancelled()
}

// Writer is the transport half the engine sends serialized frames through.
// Writes must be delivered in call order.
type Writer interface {
	// Write hands p to the transport. The writer owns p until h is notified.
	// h may run before Write returns, so callers must not hold locks that
	// h itself acquires.
	Write(p []byte, h CompletionHandler)

	// Close shuts the transport down; pending writes are cancelled.
	Close() error
}

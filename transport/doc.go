// Package transport
// Author: momentics <momentics@gmail.com>
//
// TCP carriage for engine connections. NetConn is the writer a session
// sends through: frames wait in a bounded FIFO and one goroutine writes
// them in order, while a full queue blocks the sender. Serve reads the
// socket and feeds the engine. Upgrader and Dial run the HTTP handshake
// on gobwas/ws, permessage-deflate negotiation included.
package transport

// Package session
// Author: momentics <momentics@gmail.com>
//
// Session bookkeeping shared by endpoints: a sharded registry of open
// sessions, a TTL-aware property store, and a once-only lifecycle signal.
// Protocol state itself lives in the endpoint package.

package session

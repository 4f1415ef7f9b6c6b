// Package session models the slice of the platform's session records this
// subsystem touches: the delivery routing used to address asynchronous
// notifications, and the embedded AuthState that mirrors pending-flow and
// credential transitions.
//
// The Store interface is deliberately tiny (Get and Put) so the core can be
// wired into any session system; FileStore is the standalone daemon's
// implementation and MemoryStore serves tests.
package session

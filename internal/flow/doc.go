// Package flow implements the coordinator for in-flight authorization
// attempts.
//
// A PendingFlow is created when an authorization URL is issued and lives in a
// Registry keyed by its state token until one of three things happens: the
// provider's callback consumes it (Consume, exactly once), the Sweeper expires
// it past its deadline, or the process restarts and the in-memory registry is
// simply gone.
//
// The registry never treats expected conditions as errors: a missing or
// already-consumed state is signalled by an ok-bool, and callers respond to
// both identically so the callback endpoint cannot be probed for which states
// exist.
package flow

package flow

import (
	"sync"
	"time"

	"agentauth/pkg/logging"
)

// Registry tracks pending authorization flows keyed by their state token and
// guarantees exactly-once, time-bounded consumption. It is an explicitly
// owned, injectable component: every caller receives its instance through a
// constructor, so tests can run isolated registries in parallel.
//
// The internal map is the only shared mutable structure in the coordinator
// and is serialized by the registry's own mutex. Consume is the single
// serialization point that prevents double-processing of a state token even
// under concurrent callbacks.
type Registry struct {
	mu    sync.Mutex
	flows map[string]PendingFlow
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{
		flows: make(map[string]PendingFlow),
	}
}

// Register inserts a flow keyed by its state token. State uniqueness is
// guaranteed by generation entropy and is not re-checked here; registering
// the same state twice overwrites, which in practice never happens.
func (r *Registry) Register(flow PendingFlow) error {
	if err := flow.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.flows[flow.State] = flow
	r.mu.Unlock()

	logging.Debug("FlowRegistry", "Registered pending flow for session %s (expires %s)",
		flow.SessionKey, flow.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Lookup returns the flow for a state token without consuming it.
func (r *Registry) Lookup(state string) (PendingFlow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.flows[state]
	return flow, ok
}

// Consume removes and returns the flow for a state token. Exactly one caller
// wins for any given state; every later call reports absence. A state that
// was never registered and one that was already consumed are indistinguishable
// to the caller, so the callback path cannot be used as an existence oracle.
func (r *Registry) Consume(state string) (PendingFlow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.flows[state]
	if ok {
		delete(r.flows, state)
	}
	return flow, ok
}

// SweepExpired removes every flow whose deadline lies before now and returns
// them so the caller can emit timeout notifications. It is idempotent and
// safe to run concurrently with Register and Consume: a flow consumed between
// sweeps is no longer in the map and cannot be re-expired.
func (r *Registry) SweepExpired(now time.Time) []PendingFlow {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []PendingFlow
	for state, flow := range r.flows {
		if flow.Expired(now) {
			delete(r.flows, state)
			expired = append(expired, flow)
		}
	}

	if len(expired) > 0 {
		logging.Debug("FlowRegistry", "Swept %d expired flow(s)", len(expired))
	}
	return expired
}

// PendingForSession returns the first pending flow owned by the given session
// and agent, if any. Used by the status entry point.
func (r *Registry) PendingForSession(sessionKey, agentID string) (PendingFlow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, flow := range r.flows {
		if flow.SessionKey == sessionKey && flow.AgentID == agentID {
			return flow, true
		}
	}
	return PendingFlow{}, false
}

// Len returns the number of pending flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Clear removes all pending flows. Called on listener shutdown; a restart
// voids in-flight requests and the user simply re-requests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows = make(map[string]PendingFlow)
}

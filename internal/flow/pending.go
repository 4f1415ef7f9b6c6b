package flow

import (
	"errors"
	"time"
)

// DefaultTTL is how long an authorization link stays valid when the caller
// does not override it.
const DefaultTTL = 5 * time.Minute

// PendingFlow represents one in-flight authorization attempt. It exists from
// the moment an authorization URL is issued until the provider's callback
// consumes it, the expiry sweep removes it, or the process restarts. Pending
// flows are never persisted; a lost flow only costs the user a retry.
type PendingFlow struct {
	// State is the cryptographically random correlation token. It is the
	// registry's primary key and appears verbatim in the authorization URL.
	State string

	// SessionKey and AgentID identify the owning conversation and the
	// credential namespace the resulting tokens belong to.
	SessionKey string
	AgentID    string

	// Account is the external account identifier (e.g. an email address)
	// the flow is authorizing access to.
	Account string

	// Services is the set of logical capability groups requested.
	Services []string

	// RequestedAt and ExpiresAt bound the flow's lifetime.
	RequestedAt time.Time
	ExpiresAt   time.Time

	// AuthorizationURL is the full URL returned to the user.
	AuthorizationURL string
}

// ErrInvalidWindow is returned when a flow's deadline does not lie after its
// request time.
var ErrInvalidWindow = errors.New("flow expiry must be after request time")

// NewPendingFlow builds a PendingFlow with the standard lifetime window.
// ttl <= 0 selects DefaultTTL.
func NewPendingFlow(state, sessionKey, agentID, account string, services []string, ttl time.Duration) PendingFlow {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return PendingFlow{
		State:       state,
		SessionKey:  sessionKey,
		AgentID:     agentID,
		Account:     account,
		Services:    append([]string(nil), services...),
		RequestedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Expired reports whether the flow's deadline has passed at the given time.
func (f PendingFlow) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// Validate checks the flow's structural invariants before registration.
func (f PendingFlow) Validate() error {
	if f.State == "" {
		return errors.New("flow state must not be empty")
	}
	if !f.ExpiresAt.After(f.RequestedAt) {
		return ErrInvalidWindow
	}
	return nil
}

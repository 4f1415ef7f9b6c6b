package session

import (
	"time"

	"github.com/google/uuid"
)

// AuthState tracks a session's delegated-access status: whether an
// authorization flow is currently pending and, once one has resolved, where
// the stored credential lives. It is cleared on every terminal flow outcome
// so it never disagrees with the flow registry or the credential store.
type AuthState struct {
	// PendingState is the state token of the in-flight flow, empty when no
	// flow is pending.
	PendingState string `yaml:"pendingState,omitempty"`

	// RequestedAt and ExpiresAt mirror the pending flow's lifetime window.
	RequestedAt time.Time `yaml:"requestedAt,omitempty"`
	ExpiresAt   time.Time `yaml:"expiresAt,omitempty"`

	// Account and Services describe what the pending flow asked for.
	Account  string   `yaml:"account,omitempty"`
	Services []string `yaml:"services,omitempty"`

	// CredentialPath points at the stored credential after a successful
	// flow, empty before then and after a revoke.
	CredentialPath string `yaml:"credentialPath,omitempty"`
}

// Pending reports whether an authorization flow is currently in flight.
func (a AuthState) Pending() bool {
	return a.PendingState != ""
}

// Record is one conversation's session entry. The delivery routing fields
// (Channel, Destination, ThreadID) are what the notification dispatcher uses
// to address follow-up messages; they are owned by the wider platform and
// only read here.
type Record struct {
	ID          string    `yaml:"id"`
	SessionKey  string    `yaml:"sessionKey"`
	AgentID     string    `yaml:"agentId"`
	Channel     string    `yaml:"channel,omitempty"`
	Destination string    `yaml:"destination,omitempty"`
	ThreadID    string    `yaml:"threadId,omitempty"`
	UpdatedAt   time.Time `yaml:"updatedAt"`
	Auth        AuthState `yaml:"auth,omitempty"`
}

// NewRecord creates a session record with a fresh identifier.
func NewRecord(sessionKey, agentID string) *Record {
	return &Record{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		AgentID:    agentID,
		UpdatedAt:  time.Now(),
	}
}

// SetPendingAuth marks an authorization flow as in flight.
func (r *Record) SetPendingAuth(state, account string, services []string, requestedAt, expiresAt time.Time) {
	r.Auth = AuthState{
		PendingState: state,
		RequestedAt:  requestedAt,
		ExpiresAt:    expiresAt,
		Account:      account,
		Services:     append([]string(nil), services...),
	}
	r.UpdatedAt = time.Now()
}

// SetCredential records a successful flow outcome: the pending markers are
// cleared and the credential pointer is set.
func (r *Record) SetCredential(account string, services []string, credentialPath string) {
	r.Auth = AuthState{
		Account:        account,
		Services:       append([]string(nil), services...),
		CredentialPath: credentialPath,
	}
	r.UpdatedAt = time.Now()
}

// ClearAuth wipes the auth state entirely. Used on revoke.
func (r *Record) ClearAuth() {
	r.Auth = AuthState{}
	r.UpdatedAt = time.Now()
}

// ClearPending removes the pending-flow markers after a timeout or failure.
// A previously committed credential reference survives, so an abandoned
// re-authorization does not disconnect a working account.
func (r *Record) ClearPending() {
	if r.Auth.CredentialPath == "" {
		r.Auth = AuthState{}
	} else {
		r.Auth.PendingState = ""
		r.Auth.RequestedAt = time.Time{}
		r.Auth.ExpiresAt = time.Time{}
	}
	r.UpdatedAt = time.Now()
}

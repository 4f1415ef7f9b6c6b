package notify

import (
	"context"

	"github.com/google/uuid"

	"agentauth/internal/session"
	"agentauth/pkg/logging"
)

// Message is one follow-up turn handed to the conversation pipeline. The ID
// is a uuid minted per message so the pipeline and this subsystem can
// correlate their log entries.
type Message struct {
	ID         string
	SessionKey string
	AgentID    string
	Text       string
}

// Enqueuer is the narrow seam to the platform's conversation pipeline: it
// appends a follow-up turn to a conversation that is not actively polling.
// The real implementation lives outside this subsystem; tests use a fake.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Dispatcher delivers the asynchronous outcome of an authorization flow back
// into the originating conversation. Every notify method resolves the
// session's routing first: an unknown (pruned) session drops the notification
// with a warning and reports success, so a missing record can never bounce an
// error back into the callback listener's response path. Enqueue failures are
// returned so the caller can decide to discard them deliberately.
type Dispatcher struct {
	sessions session.Store
	enqueuer Enqueuer
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(sessions session.Store, enqueuer Enqueuer) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		enqueuer: enqueuer,
	}
}

// NotifySuccess announces a completed authorization, naming the services the
// provider actually granted (which may be fewer than requested).
func (d *Dispatcher) NotifySuccess(ctx context.Context, sessionKey, agentID, account string, grantedServices []string) error {
	return d.deliver(ctx, sessionKey, agentID, successText(account, grantedServices))
}

// NotifyTimeout announces that an authorization link expired unused. Timeouts
// are recoverable by retrying, so the wording invites a re-request rather
// than reporting a failure.
func (d *Dispatcher) NotifyTimeout(ctx context.Context, sessionKey, agentID, account string) error {
	return d.deliver(ctx, sessionKey, agentID, timeoutText(account))
}

// NotifyError announces a failed flow. A declined consent screen
// (ReasonAccessDenied) is a deliberate user choice, not a malfunction, and
// gets distinctly friendlier wording than provider or transport errors.
func (d *Dispatcher) NotifyError(ctx context.Context, sessionKey, agentID, account, reason string) error {
	if reason == ReasonAccessDenied {
		return d.deliver(ctx, sessionKey, agentID, declinedText(account))
	}
	return d.deliver(ctx, sessionKey, agentID, errorText(account, reason))
}

// deliver resolves routing and enqueues one follow-up message.
func (d *Dispatcher) deliver(ctx context.Context, sessionKey, agentID, text string) error {
	record, err := d.sessions.Get(sessionKey)
	if err != nil {
		logging.Warn("Notify", "Failed to resolve session %s, dropping notification: %v", sessionKey, err)
		return nil
	}
	if record == nil {
		logging.Warn("Notify", "Session %s not found (pruned?), dropping notification", sessionKey)
		return nil
	}

	msg := Message{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		AgentID:    agentID,
		Text:       text,
	}
	if err := d.enqueuer.Enqueue(ctx, msg); err != nil {
		return err
	}

	logging.Info("Notify", "Delivered follow-up %s to session %s via %s/%s",
		msg.ID, sessionKey, record.Channel, record.Destination)
	return nil
}

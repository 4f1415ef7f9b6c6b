package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/internal/session"
)

type fakeEnqueuer struct {
	messages []Message
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.MemoryStore, *fakeEnqueuer) {
	t.Helper()
	sessions := session.NewMemoryStore()
	record := session.NewRecord("session-1", "agent-1")
	record.Channel = "chat"
	record.Destination = "room-42"
	require.NoError(t, sessions.Put(record))

	enqueuer := &fakeEnqueuer{}
	return NewDispatcher(sessions, enqueuer), sessions, enqueuer
}

func TestDispatcher_NotifySuccess(t *testing.T) {
	d, _, enq := newTestDispatcher(t)

	err := d.NotifySuccess(context.Background(), "session-1", "agent-1", "user@example.com", []string{"mail", "calendar"})
	require.NoError(t, err)

	require.Len(t, enq.messages, 1)
	msg := enq.messages[0]
	assert.Equal(t, "session-1", msg.SessionKey)
	assert.Equal(t, "agent-1", msg.AgentID)
	assert.NotEmpty(t, msg.ID)
	assert.True(t, strings.HasPrefix(msg.Text, MsgConnected))
	assert.Contains(t, msg.Text, "user@example.com")
	assert.Contains(t, msg.Text, "mail, calendar")
}

func TestDispatcher_NotifySuccessWithoutServices(t *testing.T) {
	d, _, enq := newTestDispatcher(t)

	require.NoError(t, d.NotifySuccess(context.Background(), "session-1", "agent-1", "user@example.com", nil))

	require.Len(t, enq.messages, 1)
	assert.NotContains(t, enq.messages[0].Text, "access to")
}

func TestDispatcher_NotifyTimeout(t *testing.T) {
	d, _, enq := newTestDispatcher(t)

	require.NoError(t, d.NotifyTimeout(context.Background(), "session-1", "agent-1", "user@example.com"))

	require.Len(t, enq.messages, 1)
	assert.True(t, strings.HasPrefix(enq.messages[0].Text, MsgTimedOut))
	assert.Contains(t, enq.messages[0].Text, "ask again")
}

func TestDispatcher_NotifyErrorAccessDenied(t *testing.T) {
	d, _, enq := newTestDispatcher(t)

	require.NoError(t, d.NotifyError(context.Background(), "session-1", "agent-1", "user@example.com", ReasonAccessDenied))

	require.Len(t, enq.messages, 1)
	text := enq.messages[0].Text
	assert.True(t, strings.HasPrefix(text, MsgDeclined))
	assert.NotContains(t, text, ReasonAccessDenied)
	assert.NotContains(t, text, MsgFailed)
}

func TestDispatcher_NotifyErrorGeneric(t *testing.T) {
	d, _, enq := newTestDispatcher(t)

	require.NoError(t, d.NotifyError(context.Background(), "session-1", "agent-1", "user@example.com", "server_error"))

	require.Len(t, enq.messages, 1)
	assert.True(t, strings.HasPrefix(enq.messages[0].Text, MsgFailed))
	assert.Contains(t, enq.messages[0].Text, "server_error")
}

func TestDispatcher_UnknownSessionDropsNotification(t *testing.T) {
	d, _, enq := newTestDispatcher(t)

	err := d.NotifySuccess(context.Background(), "no-such-session", "agent-1", "user@example.com", nil)

	require.NoError(t, err)
	assert.Empty(t, enq.messages)
}

func TestDispatcher_EnqueueFailurePropagates(t *testing.T) {
	d, _, enq := newTestDispatcher(t)
	enq.err = errors.New("pipeline unavailable")

	err := d.NotifyTimeout(context.Background(), "session-1", "agent-1", "user@example.com")

	require.Error(t, err)
	assert.Empty(t, enq.messages)
}

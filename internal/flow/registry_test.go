package flow

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/pkg/oauth"
)

func testFlow(t *testing.T, ttl time.Duration) PendingFlow {
	t.Helper()
	state, err := oauth.GenerateState()
	require.NoError(t, err)
	return NewPendingFlow(state, "session-1", "agent-1", "user@example.com", []string{"mail"}, ttl)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Minute)

	require.NoError(t, r.Register(f))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup(f.State)
	require.True(t, ok)
	assert.Equal(t, f.SessionKey, got.SessionKey)
	assert.Equal(t, f.Account, got.Account)

	// Lookup does not consume.
	_, ok = r.Lookup(f.State)
	assert.True(t, ok)
}

func TestRegistry_RegisterRejectsInvalidFlows(t *testing.T) {
	r := NewRegistry()

	err := r.Register(PendingFlow{State: "", RequestedAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute)})
	assert.Error(t, err)

	now := time.Now()
	err = r.Register(PendingFlow{State: "s", RequestedAt: now, ExpiresAt: now})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestRegistry_ConsumeIsSingleUse(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Minute)
	require.NoError(t, r.Register(f))

	got, ok := r.Consume(f.State)
	require.True(t, ok)
	assert.Equal(t, f.State, got.State)

	// Second consume reports absence, same as a state that never existed.
	_, ok = r.Consume(f.State)
	assert.False(t, ok)
	_, ok = r.Consume("never-registered")
	assert.False(t, ok)
}

func TestRegistry_ConsumeConcurrentSingleWinner(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Minute)
	require.NoError(t, r.Register(f))

	const callers = 32
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := r.Consume(f.State); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins, "exactly one concurrent caller must win Consume")
}

func TestRegistry_SweepExpired(t *testing.T) {
	r := NewRegistry()

	live := testFlow(t, time.Hour)
	expired := testFlow(t, time.Millisecond)
	require.NoError(t, r.Register(live))
	require.NoError(t, r.Register(expired))

	swept := r.SweepExpired(time.Now().Add(5 * time.Millisecond))
	require.Len(t, swept, 1)
	assert.Equal(t, expired.State, swept[0].State)

	// The expired flow can no longer be correlated.
	_, ok := r.Consume(expired.State)
	assert.False(t, ok)

	// The live flow is untouched.
	_, ok = r.Lookup(live.State)
	assert.True(t, ok)

	// A second sweep finds nothing; sweeping is idempotent.
	assert.Empty(t, r.SweepExpired(time.Now().Add(5*time.Millisecond)))
}

func TestRegistry_SweepCannotReExpireConsumedFlow(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Millisecond)
	require.NoError(t, r.Register(f))

	// Callback wins the race: the flow is consumed before the sweep fires.
	_, ok := r.Consume(f.State)
	require.True(t, ok)

	swept := r.SweepExpired(time.Now().Add(time.Hour))
	assert.Empty(t, swept)
}

func TestRegistry_PendingForSession(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Minute)
	require.NoError(t, r.Register(f))

	got, ok := r.PendingForSession("session-1", "agent-1")
	require.True(t, ok)
	assert.Equal(t, f.State, got.State)

	_, ok = r.PendingForSession("session-2", "agent-1")
	assert.False(t, ok)
	_, ok = r.PendingForSession("session-1", "agent-2")
	assert.False(t, ok)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testFlow(t, time.Minute)))
	require.NoError(t, r.Register(testFlow(t, time.Minute)))

	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestNewPendingFlow_Defaults(t *testing.T) {
	f := NewPendingFlow("state", "s", "a", "user@example.com", []string{"mail"}, 0)
	assert.Equal(t, DefaultTTL, f.ExpiresAt.Sub(f.RequestedAt))
	assert.NoError(t, f.Validate())
}

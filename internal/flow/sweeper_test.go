package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ReportsExpiredFlowsExactlyOnce(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Millisecond)
	require.NoError(t, r.Register(f))

	var mu sync.Mutex
	reported := make(map[string]int)

	s := NewSweeper(r, func(expired PendingFlow) {
		mu.Lock()
		reported[expired.State]++
		mu.Unlock()
	}, WithSweepInterval(10*time.Millisecond))

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported[f.State] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give the sweeper a few more ticks; the count must not grow.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, reported[f.State])
}

func TestSweeper_LeavesLiveFlowsAlone(t *testing.T) {
	r := NewRegistry()
	f := testFlow(t, time.Hour)
	require.NoError(t, r.Register(f))

	s := NewSweeper(r, func(PendingFlow) {
		t.Error("live flow must not be reported as expired")
	}, WithSweepInterval(10*time.Millisecond))

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	_, ok := r.Lookup(f.State)
	assert.True(t, ok)
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	s := NewSweeper(NewRegistry(), nil, WithSweepInterval(10*time.Millisecond))
	s.Start(context.Background())
	s.Stop()
	s.Stop()

	// Restart after stop works.
	s.Start(context.Background())
	s.Stop()
}

func TestSweeper_ContextCancellationStopsLoop(t *testing.T) {
	r := NewRegistry()
	s := NewSweeper(r, nil, WithSweepInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	// Stop still returns promptly after the context ended the loop.
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

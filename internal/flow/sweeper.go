package flow

import (
	"context"
	"sync"
	"time"

	"agentauth/pkg/logging"
)

// DefaultSweepInterval is how often the sweeper checks for expired flows.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically removes expired flows from a registry and reports them
// to a callback so the owner can dispatch timeout notifications. Each expired
// flow is reported exactly once: SweepExpired removes it from the registry
// before it is handed to the callback.
type Sweeper struct {
	registry  *Registry
	interval  time.Duration
	onExpired func(PendingFlow)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// SweeperOption configures the sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the sweep interval.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// NewSweeper creates a sweeper for the registry. onExpired may be nil when the
// owner has no interest in timeout notifications (e.g. some tests).
func NewSweeper(registry *Registry, onExpired func(PendingFlow), opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry:  registry,
		interval:  DefaultSweepInterval,
		onExpired: onExpired,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. It returns immediately; the loop runs until
// Stop is called or the context is cancelled. Starting a running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep runs one pass and reports each expired flow.
func (s *Sweeper) sweep(now time.Time) {
	for _, expired := range s.registry.SweepExpired(now) {
		logging.Info("FlowSweeper", "Authorization flow for session %s timed out (requested %s)",
			expired.SessionKey, expired.RequestedAt.Format(time.RFC3339))
		if s.onExpired != nil {
			s.onExpired(expired)
		}
	}
}

// Stop terminates the sweep loop and waits for it to exit. Safe to call more
// than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

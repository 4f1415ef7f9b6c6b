package callback

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"agentauth/internal/flow"
	"agentauth/pkg/logging"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// Completer finishes or abandons a pending flow once the listener has
// correlated a callback to it. Implementations own the code exchange,
// credential commit, and all outcome notifications; the listener only maps
// their results to HTTP responses.
type Completer interface {
	// CompleteFlow exchanges the authorization code and commits the
	// resulting credential. A returned error means the exchange or commit
	// failed; the implementation has already notified the conversation.
	CompleteFlow(ctx context.Context, pending flow.PendingFlow, code string) error

	// ExpireFlow reports a flow whose link was used after its deadline.
	ExpireFlow(ctx context.Context, pending flow.PendingFlow)

	// FailFlow reports a flow the provider rejected, with the provider's
	// error code as the reason.
	FailFlow(ctx context.Context, pending flow.PendingFlow, reason string)
}

// Server is the loopback HTTP listener that receives provider redirects for
// all in-flight flows. It binds the first free port from an ordered candidate
// list so the redirect URI stays predictable across restarts, and it stays up
// for the lifetime of the process rather than per flow.
type Server struct {
	ports     []int
	path      string
	registry  *flow.Registry
	completer Completer

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	port     int
}

// NewServer creates a callback server over the given port candidates and
// callback path. The server does not listen until Start is called.
func NewServer(ports []int, path string, registry *flow.Registry, completer Completer) *Server {
	return &Server{
		ports:     ports,
		path:      path,
		registry:  registry,
		completer: completer,
	}
}

// Start binds the first available candidate port on the loopback interface
// and begins serving. It returns an error only when every candidate is taken.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("callback server already started")
	}

	var lastErr error
	for _, port := range s.ports {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			logging.Debug("Callback", "Port %d unavailable, trying next candidate: %v", port, err)
			lastErr = err
			continue
		}
		s.listener = listener
		s.port = port
		break
	}
	if s.listener == nil {
		return fmt.Errorf("no callback port available, tried %v: %w", s.ports, lastErr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			logging.Error("Callback", err, "Callback server terminated unexpectedly")
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Info("Callback", "Listening on 127.0.0.1:%d%s", s.port, s.path)
	return nil
}

// Stop gracefully shuts down the listener and clears every pending flow.
// Links issued before the stop cannot correlate after a restart, since the
// listener may come back on a different port. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}

	if dropped := s.registry.Len(); dropped > 0 {
		logging.Info("Callback", "Dropping %d pending flow(s) on shutdown", dropped)
	}
	s.registry.Clear()
}

// Port returns the bound port, or 0 before Start succeeds.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// RedirectURI returns the redirect URI to register authorization requests
// with. Only valid after Start succeeds.
func (s *Server) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.port, s.path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

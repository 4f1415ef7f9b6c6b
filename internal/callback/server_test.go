package callback

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/internal/flow"
)

// freePort reserves an ephemeral port and returns it closed, so the caller
// can hand it to the server as a candidate.
func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestServer_StartAndHealth(t *testing.T) {
	server := NewServer([]int{freePort(t)}, "/oauth/callback", flow.NewRegistry(), &fakeCompleter{})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", server.Port()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestServer_PortFallback(t *testing.T) {
	// Occupy the first candidate so the server has to fall through.
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	occupiedPort := occupied.Addr().(*net.TCPAddr).Port

	fallbackPort := freePort(t)

	server := NewServer([]int{occupiedPort, fallbackPort}, "/oauth/callback", flow.NewRegistry(), &fakeCompleter{})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	assert.Equal(t, fallbackPort, server.Port())
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d/oauth/callback", fallbackPort), server.RedirectURI())
}

func TestServer_AllPortsTaken(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	occupiedPort := occupied.Addr().(*net.TCPAddr).Port

	server := NewServer([]int{occupiedPort}, "/oauth/callback", flow.NewRegistry(), &fakeCompleter{})
	err = server.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no callback port available")
}

func TestServer_StartTwice(t *testing.T) {
	server := NewServer([]int{freePort(t)}, "/oauth/callback", flow.NewRegistry(), &fakeCompleter{})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	assert.Error(t, server.Start(context.Background()))
}

func TestServer_StopClearsPendingFlows(t *testing.T) {
	registry := flow.NewRegistry()
	server := NewServer([]int{freePort(t)}, "/oauth/callback", registry, &fakeCompleter{})
	require.NoError(t, server.Start(context.Background()))

	pending := flow.NewPendingFlow("state-abc", "session-1", "agent-1", "user@example.com", nil, 0)
	require.NoError(t, registry.Register(pending))

	server.Stop()

	assert.Equal(t, 0, registry.Len(), "stop must clear all pending flows")

	// A link issued before the stop must not correlate after a restart.
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()
	_, ok := registry.Lookup("state-abc")
	assert.False(t, ok)
}

func TestServer_StopIsIdempotent(t *testing.T) {
	server := NewServer([]int{freePort(t)}, "/oauth/callback", flow.NewRegistry(), &fakeCompleter{})
	require.NoError(t, server.Start(context.Background()))

	server.Stop()
	server.Stop()
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPEnqueuer delivers follow-up messages to the agent platform's message
// pipeline over HTTP. The pipeline endpoint accepts a JSON POST per message
// and answers 2xx on acceptance.
type HTTPEnqueuer struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPEnqueuer creates an enqueuer posting to the given endpoint.
func NewHTTPEnqueuer(endpoint string) *HTTPEnqueuer {
	return &HTTPEnqueuer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type enqueueRequest struct {
	ID         string `json:"id"`
	SessionKey string `json:"sessionKey"`
	AgentID    string `json:"agentId"`
	Text       string `json:"text"`
}

// Enqueue implements Enqueuer.
func (e *HTTPEnqueuer) Enqueue(ctx context.Context, msg Message) error {
	body, err := json.Marshal(enqueueRequest{
		ID:         msg.ID,
		SessionKey: msg.SessionKey,
		AgentID:    msg.AgentID,
		Text:       msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach message pipeline: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("message pipeline rejected message: HTTP %d", resp.StatusCode)
	}
	return nil
}

// WriterEnqueuer prints follow-up messages to a writer. It stands in for the
// pipeline when no endpoint is configured and in the CLI commands, where the
// terminal is the conversation.
type WriterEnqueuer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterEnqueuer creates an enqueuer writing to out.
func NewWriterEnqueuer(out io.Writer) *WriterEnqueuer {
	return &WriterEnqueuer{out: out}
}

// Enqueue implements Enqueuer.
func (e *WriterEnqueuer) Enqueue(_ context.Context, msg Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := fmt.Fprintf(e.out, "[%s/%s] %s\n", msg.AgentID, msg.SessionKey, msg.Text)
	return err
}

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("creates client with defaults", func(t *testing.T) {
		c := NewClient("client-id", "client-secret", Endpoints{})
		if c.httpClient == nil {
			t.Error("expected httpClient to be set")
		}
		if c.logger == nil {
			t.Error("expected logger to be set")
		}
		if c.metadataCache == nil {
			t.Error("expected metadataCache to be initialized")
		}
		if c.metadataTTL != DefaultMetadataCacheTTL {
			t.Errorf("expected metadataTTL to be %v, got %v", DefaultMetadataCacheTTL, c.metadataTTL)
		}
	})

	t.Run("applies options", func(t *testing.T) {
		customHTTP := &http.Client{Timeout: 10 * time.Second}
		customTTL := 5 * time.Minute

		c := NewClient("client-id", "client-secret", Endpoints{},
			WithHTTPClient(customHTTP),
			WithMetadataCacheTTL(customTTL),
		)

		if c.httpClient != customHTTP {
			t.Error("expected custom httpClient to be set")
		}
		if c.metadataTTL != customTTL {
			t.Errorf("expected metadataTTL to be %v, got %v", customTTL, c.metadataTTL)
		}
	})
}

// fakeProvider is a minimal OAuth provider for exercising the client.
type fakeProvider struct {
	server *httptest.Server

	mu          sync.Mutex
	tokenCalls  []url.Values
	revokeCalls []url.Values

	tokenStatus int
	tokenBody   map[string]interface{}
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{
		tokenStatus: http.StatusOK,
		tokenBody: map[string]interface{}{
			"access_token":  "fake-access-token",
			"refresh_token": "fake-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "mail.read",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.tokenCalls = append(p.tokenCalls, r.PostForm)
		status := p.tokenStatus
		body := p.tokenBody
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.revokeCalls = append(p.revokeCalls, r.PostForm)
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) endpoints() Endpoints {
	return Endpoints{
		AuthorizationEndpoint: p.server.URL + "/authorize",
		TokenEndpoint:         p.server.URL + "/token",
		RevocationEndpoint:    p.server.URL + "/revoke",
	}
}

func (p *fakeProvider) lastTokenCall() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tokenCalls) == 0 {
		return nil
	}
	return p.tokenCalls[len(p.tokenCalls)-1]
}

func TestAuthorizationURL(t *testing.T) {
	c := NewClient("my-client", "my-secret", Endpoints{
		AuthorizationEndpoint: "https://provider.example.com/authorize",
		TokenEndpoint:         "https://provider.example.com/token",
	})

	rawURL, err := c.AuthorizationURL(context.Background(),
		"http://localhost:8700/oauth/callback", "test-state",
		[]string{"mail.read", "calendar.events"}, "user@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("authorization URL is invalid: %v", err)
	}

	q := parsed.Query()
	checks := map[string]string{
		"response_type": "code",
		"client_id":     "my-client",
		"redirect_uri":  "http://localhost:8700/oauth/callback",
		"state":         "test-state",
		"scope":         "mail.read calendar.events",
		"access_type":   "offline",
		"prompt":        "consent",
		"login_hint":    "user@example.com",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, expected %q", key, got, want)
		}
	}
}

func TestAuthorizationURL_OmitsEmptyOptionals(t *testing.T) {
	c := NewClient("my-client", "my-secret", Endpoints{
		AuthorizationEndpoint: "https://provider.example.com/authorize",
		TokenEndpoint:         "https://provider.example.com/token",
	})

	rawURL, err := c.AuthorizationURL(context.Background(), "http://localhost:8700/cb", "s", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, _ := url.Parse(rawURL)
	q := parsed.Query()
	if q.Has("scope") {
		t.Error("expected scope to be omitted when empty")
	}
	if q.Has("login_hint") {
		t.Error("expected login_hint to be omitted when empty")
	}
}

func TestExchangeCode(t *testing.T) {
	provider := newFakeProvider(t)
	c := NewClient("my-client", "my-secret", provider.endpoints())

	token, err := c.ExchangeCode(context.Background(), "auth-code", "http://localhost:8700/oauth/callback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token.AccessToken != "fake-access-token" {
		t.Errorf("expected access token, got %q", token.AccessToken)
	}
	if token.RefreshToken != "fake-refresh-token" {
		t.Errorf("expected refresh token, got %q", token.RefreshToken)
	}
	if token.ExpiresAt.IsZero() {
		t.Error("expected ExpiresAt to be calculated from expires_in")
	}

	call := provider.lastTokenCall()
	if call.Get("grant_type") != "authorization_code" {
		t.Errorf("expected authorization_code grant, got %q", call.Get("grant_type"))
	}
	if call.Get("code") != "auth-code" {
		t.Errorf("expected code to be sent, got %q", call.Get("code"))
	}
	if call.Get("redirect_uri") != "http://localhost:8700/oauth/callback" {
		t.Errorf("expected redirect_uri to be sent, got %q", call.Get("redirect_uri"))
	}
	if call.Get("client_secret") != "my-secret" {
		t.Error("expected client_secret to be sent")
	}
}

func TestRefresh(t *testing.T) {
	provider := newFakeProvider(t)
	c := NewClient("my-client", "my-secret", provider.endpoints())

	token, err := c.Refresh(context.Background(), "old-refresh-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "fake-access-token" {
		t.Errorf("expected access token, got %q", token.AccessToken)
	}

	call := provider.lastTokenCall()
	if call.Get("grant_type") != "refresh_token" {
		t.Errorf("expected refresh_token grant, got %q", call.Get("grant_type"))
	}
	if call.Get("refresh_token") != "old-refresh-token" {
		t.Errorf("expected refresh token to be sent, got %q", call.Get("refresh_token"))
	}
}

func TestRefresh_ProviderError(t *testing.T) {
	provider := newFakeProvider(t)
	provider.tokenStatus = http.StatusBadRequest
	provider.tokenBody = map[string]interface{}{
		"error":             "invalid_grant",
		"error_description": "Token has been expired or revoked.",
	}

	c := NewClient("my-client", "my-secret", provider.endpoints())

	_, err := c.Refresh(context.Background(), "revoked-refresh-token")
	if err == nil {
		t.Fatal("expected error for rejected refresh")
	}

	providerErr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if !providerErr.IsInvalidGrant() {
		t.Errorf("expected invalid_grant, got %q", providerErr.Code)
	}
	if providerErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", providerErr.StatusCode)
	}
}

func TestRevoke(t *testing.T) {
	provider := newFakeProvider(t)
	c := NewClient("my-client", "my-secret", provider.endpoints())

	if err := c.Revoke(context.Background(), "some-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.revokeCalls) != 1 {
		t.Fatalf("expected 1 revocation call, got %d", len(provider.revokeCalls))
	}
	if provider.revokeCalls[0].Get("token") != "some-token" {
		t.Errorf("expected token to be sent, got %q", provider.revokeCalls[0].Get("token"))
	}
}

func TestRevoke_NoEndpointIsNoop(t *testing.T) {
	c := NewClient("my-client", "my-secret", Endpoints{
		AuthorizationEndpoint: "https://provider.example.com/authorize",
		TokenEndpoint:         "https://provider.example.com/token",
	})

	if err := c.Revoke(context.Background(), "some-token"); err != nil {
		t.Errorf("expected nil error without revocation endpoint, got %v", err)
	}
}

func TestDiscoverMetadata(t *testing.T) {
	t.Run("discovers via RFC 8414 endpoint", func(t *testing.T) {
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
			RevocationEndpoint:    "https://issuer.example.com/revoke",
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/.well-known/oauth-authorization-server" {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(metadata)
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		c := NewClient("id", "secret", Endpoints{Issuer: server.URL}, WithHTTPClient(server.Client()))
		result, err := c.DiscoverMetadata(context.Background(), server.URL)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.AuthorizationEndpoint != metadata.AuthorizationEndpoint {
			t.Errorf("expected auth endpoint %s, got %s", metadata.AuthorizationEndpoint, result.AuthorizationEndpoint)
		}
		if result.RevocationEndpoint != metadata.RevocationEndpoint {
			t.Errorf("expected revocation endpoint %s, got %s", metadata.RevocationEndpoint, result.RevocationEndpoint)
		}
	})

	t.Run("falls back to OIDC discovery", func(t *testing.T) {
		var fetches int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&fetches, 1)
			if r.URL.Path == "/.well-known/openid-configuration" {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(&Metadata{
					Issuer:                "https://issuer.example.com",
					AuthorizationEndpoint: "https://issuer.example.com/authorize",
					TokenEndpoint:         "https://issuer.example.com/token",
				})
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		c := NewClient("id", "secret", Endpoints{Issuer: server.URL}, WithHTTPClient(server.Client()))
		result, err := c.DiscoverMetadata(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TokenEndpoint != "https://issuer.example.com/token" {
			t.Errorf("unexpected token endpoint: %s", result.TokenEndpoint)
		}
	})

	t.Run("caches results", func(t *testing.T) {
		var fetches int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&fetches, 1)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(&Metadata{
				Issuer:        "https://issuer.example.com",
				TokenEndpoint: "https://issuer.example.com/token",
			})
		}))
		defer server.Close()

		c := NewClient("id", "secret", Endpoints{Issuer: server.URL}, WithHTTPClient(server.Client()))

		for i := 0; i < 3; i++ {
			if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if got := atomic.LoadInt32(&fetches); got != 1 {
			t.Errorf("expected 1 metadata fetch, got %d", got)
		}

		c.ClearMetadataCache()
		if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&fetches); got != 2 {
			t.Errorf("expected 2 metadata fetches after cache clear, got %d", got)
		}
	})
}

func TestEndpoints_DiscoversWhenIncomplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/.well-known/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
		})
	}))
	defer server.Close()

	c := NewClient("id", "secret", Endpoints{Issuer: server.URL}, WithHTTPClient(server.Client()))

	endpoints, err := c.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !endpoints.Complete() {
		t.Errorf("expected discovered endpoints to be complete: %+v", endpoints)
	}
}

func TestEndpoints_ErrorWithoutIssuer(t *testing.T) {
	c := NewClient("id", "secret", Endpoints{})
	if _, err := c.Endpoints(context.Background()); err == nil {
		t.Error("expected error when neither endpoints nor issuer are configured")
	}
}

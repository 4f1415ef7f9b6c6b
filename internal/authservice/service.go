package authservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentauth/internal/callback"
	"agentauth/internal/config"
	"agentauth/internal/credstore"
	"agentauth/internal/flow"
	"agentauth/internal/notify"
	"agentauth/internal/session"
	"agentauth/pkg/logging"
	"agentauth/pkg/oauth"
)

// Service ties the flow registry, credential store, provider client, session
// store and notification dispatcher together into the operations the agent
// runtime calls. It also implements callback.Completer, so the loopback
// listener hands finished flows straight back to it.
type Service struct {
	cfg      *config.Config
	registry *flow.Registry
	creds    *credstore.Store
	client   *oauth.Client
	notifier *notify.Dispatcher
	sessions session.Store
	sweeper  *flow.Sweeper

	mu          sync.RWMutex
	redirectURI string
}

var _ callback.Completer = (*Service)(nil)

// NewService creates the service. The redirect URI is not known until the
// callback listener has bound a port, so it is injected later via
// SetRedirectURI.
func NewService(cfg *config.Config, registry *flow.Registry, creds *credstore.Store, client *oauth.Client, notifier *notify.Dispatcher, sessions session.Store) *Service {
	s := &Service{
		cfg:      cfg,
		registry: registry,
		creds:    creds,
		client:   client,
		notifier: notifier,
		sessions: sessions,
	}
	s.sweeper = flow.NewSweeper(registry, func(expired flow.PendingFlow) {
		s.ExpireFlow(context.Background(), expired)
	}, flow.WithSweepInterval(cfg.Flow.SweepInterval()))
	return s
}

// Start launches the background sweeper that times out abandoned flows.
func (s *Service) Start(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// Stop halts the sweeper. In-flight callback handling is unaffected.
func (s *Service) Stop() {
	s.sweeper.Stop()
}

// SetRedirectURI records the callback listener's redirect URI. StartFlow
// refuses to run until this has been set.
func (s *Service) SetRedirectURI(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirectURI = uri
}

func (s *Service) currentRedirectURI() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redirectURI
}

// StartFlowRequest identifies who is asking for authorization and what for.
type StartFlowRequest struct {
	SessionKey string
	AgentID    string
	Account    string
	// Services to request access for. Empty means every configured service.
	Services []string
}

// StartFlowResult is everything the conversation needs to relay the link.
type StartFlowResult struct {
	AuthorizationURL string
	State            string
	ExpiresIn        time.Duration
	Instructions     string
}

// StartFlow issues a fresh authorization link and registers the pending flow
// it belongs to. The call returns immediately; the outcome arrives later as a
// notification. A new request for the same session and account supersedes any
// link still pending, invalidating the old one.
func (s *Service) StartFlow(ctx context.Context, req StartFlowRequest) (*StartFlowResult, error) {
	if req.SessionKey == "" || req.AgentID == "" || req.Account == "" {
		return nil, errors.New("sessionKey, agentId and account are required")
	}

	redirectURI := s.currentRedirectURI()
	if redirectURI == "" {
		return nil, errors.New("callback listener is not running")
	}

	services := req.Services
	if len(services) == 0 {
		services = s.allServices()
	}
	scopes, err := s.cfg.ScopesFor(services)
	if err != nil {
		return nil, err
	}

	if previous, ok := s.registry.PendingForSession(req.SessionKey, req.AgentID); ok && previous.Account == req.Account {
		s.registry.Consume(previous.State)
		logging.Info("AuthService", "Superseding pending flow for %s in session %s", req.Account, req.SessionKey)
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := s.client.AuthorizationURL(ctx, redirectURI, state, scopes, req.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization URL: %w", err)
	}

	ttl := s.cfg.Flow.TTL()
	pending := flow.NewPendingFlow(state, req.SessionKey, req.AgentID, req.Account, services, ttl)
	if err := s.registry.Register(pending); err != nil {
		return nil, err
	}

	if err := s.updateSession(req.SessionKey, req.AgentID, func(record *session.Record) {
		record.SetPendingAuth(state, req.Account, services, pending.RequestedAt, pending.ExpiresAt)
	}); err != nil {
		s.registry.Consume(state)
		return nil, fmt.Errorf("failed to record pending flow in session: %w", err)
	}

	logging.Info("AuthService", "Started flow for %s in session %s (services: %v, expires in %s)",
		req.Account, req.SessionKey, services, ttl)

	return &StartFlowResult{
		AuthorizationURL: authURL,
		State:            state,
		ExpiresIn:        ttl,
		Instructions: fmt.Sprintf("To connect %s, open this link in your browser: %s\nThe link expires in %d minutes. I'll let you know here once it's done.",
			req.Account, authURL, int(ttl.Minutes())),
	}, nil
}

// PendingInfo describes a flow that is still waiting for its callback.
type PendingInfo struct {
	Account   string
	Services  []string
	ExpiresAt time.Time
}

// StatusResult reports what is linked and what is in flight for a session.
type StatusResult struct {
	Authenticated bool
	Account       string
	Services      []string
	ExpiresAt     time.Time
	Pending       *PendingInfo
}

// Status reports the credential and pending-flow state for a session without
// touching the provider. An expired access token with a refresh token on file
// still counts as authenticated, since the next use refreshes it.
func (s *Service) Status(ctx context.Context, sessionKey, agentID, account string) (*StatusResult, error) {
	result := &StatusResult{}

	cred, err := s.creds.Load(agentID, sessionKey, account)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		result.Authenticated = true
		result.Account = cred.Account
		result.Services = cred.Services
		result.ExpiresAt = cred.Expiry
	}

	if pending, ok := s.registry.PendingForSession(sessionKey, agentID); ok {
		if account == "" || pending.Account == account {
			result.Pending = &PendingInfo{
				Account:   pending.Account,
				Services:  pending.Services,
				ExpiresAt: pending.ExpiresAt,
			}
		}
	}

	return result, nil
}

// Credential returns a ready-to-use credential for the session, refreshing it
// first when it is within the expiry buffer. A nil credential with a nil
// error means the account is not linked (or the refresh token was rejected)
// and a new flow is needed.
func (s *Service) Credential(ctx context.Context, sessionKey, agentID, account string) (*credstore.Credential, error) {
	return s.creds.GetValid(ctx, agentID, sessionKey, account)
}

// Revoke disconnects an account: best-effort upstream revocation, local
// credential removal, session cleanup, and cancellation of any pending flow.
// An empty account disconnects every account linked to the session. Revoking
// an account that was never linked is a no-op.
func (s *Service) Revoke(ctx context.Context, sessionKey, agentID, account string) error {
	if pending, ok := s.registry.PendingForSession(sessionKey, agentID); ok && (account == "" || pending.Account == account) {
		s.registry.Consume(pending.State)
	}

	if err := s.creds.Revoke(ctx, agentID, sessionKey, account); err != nil {
		return err
	}

	if err := s.updateExistingSession(sessionKey, func(record *session.Record) {
		record.ClearAuth()
	}); err != nil {
		logging.Warn("AuthService", "Failed to clear session auth state for %s: %v", sessionKey, err)
	}

	logging.Info("AuthService", "Revoked credential for %s in session %s", account, sessionKey)
	return nil
}

// CompleteFlow exchanges the authorization code of a consumed pending flow
// and commits the credential. Implements callback.Completer.
func (s *Service) CompleteFlow(ctx context.Context, pending flow.PendingFlow, code string) error {
	token, err := s.client.ExchangeCode(ctx, code, s.currentRedirectURI())
	if err != nil {
		reason := "exchange_failed"
		var providerErr *oauth.ProviderError
		if errors.As(err, &providerErr) && providerErr.Code != "" {
			reason = providerErr.Code
		}
		s.abandonFlow(ctx, pending, reason)
		return fmt.Errorf("code exchange failed: %w", err)
	}

	granted := pending.Services
	if scopes := token.Scopes(); len(scopes) > 0 {
		if mapped := s.cfg.ServicesForScopes(scopes); len(mapped) > 0 {
			granted = mapped
		}
	}

	cred := credstore.FromToken(pending.AgentID, pending.SessionKey, pending.Account, token, granted)
	path, err := s.creds.Save(cred)
	if err != nil {
		s.abandonFlow(ctx, pending, "storage_error")
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	if err := s.updateExistingSession(pending.SessionKey, func(record *session.Record) {
		record.SetCredential(pending.Account, granted, path)
	}); err != nil {
		logging.Warn("AuthService", "Failed to update session %s after commit: %v", pending.SessionKey, err)
	}

	if err := s.notifier.NotifySuccess(ctx, pending.SessionKey, pending.AgentID, pending.Account, granted); err != nil {
		logging.Warn("AuthService", "Failed to deliver success notification for session %s: %v", pending.SessionKey, err)
	}

	logging.Info("AuthService", "Completed flow for %s in session %s (granted: %v)",
		pending.Account, pending.SessionKey, granted)
	return nil
}

// ExpireFlow reports a flow that timed out, either via the sweeper or via a
// late callback. Implements callback.Completer.
func (s *Service) ExpireFlow(ctx context.Context, pending flow.PendingFlow) {
	logging.Info("AuthService", "Flow for %s in session %s expired unused", pending.Account, pending.SessionKey)

	if err := s.clearPendingState(pending); err != nil {
		logging.Warn("AuthService", "Failed to clear expired flow from session %s: %v", pending.SessionKey, err)
	}
	if err := s.notifier.NotifyTimeout(ctx, pending.SessionKey, pending.AgentID, pending.Account); err != nil {
		logging.Warn("AuthService", "Failed to deliver timeout notification for session %s: %v", pending.SessionKey, err)
	}
}

// FailFlow reports a flow the provider rejected. Implements
// callback.Completer.
func (s *Service) FailFlow(ctx context.Context, pending flow.PendingFlow, reason string) {
	logging.Warn("AuthService", "Flow for %s in session %s failed: %s", pending.Account, pending.SessionKey, reason)
	s.abandonFlow(ctx, pending, reason)
}

func (s *Service) abandonFlow(ctx context.Context, pending flow.PendingFlow, reason string) {
	if err := s.clearPendingState(pending); err != nil {
		logging.Warn("AuthService", "Failed to clear failed flow from session %s: %v", pending.SessionKey, err)
	}
	if err := s.notifier.NotifyError(ctx, pending.SessionKey, pending.AgentID, pending.Account, reason); err != nil {
		logging.Warn("AuthService", "Failed to deliver error notification for session %s: %v", pending.SessionKey, err)
	}
}

// clearPendingState drops the pending markers from the session record, but
// only while they still describe this flow. A newer flow's markers stay put.
func (s *Service) clearPendingState(pending flow.PendingFlow) error {
	return s.updateExistingSession(pending.SessionKey, func(record *session.Record) {
		if record.Auth.PendingState == pending.State {
			record.ClearPending()
		}
	})
}

// updateSession mutates the session record, creating it when absent.
func (s *Service) updateSession(sessionKey, agentID string, mutate func(*session.Record)) error {
	record, err := s.sessions.Get(sessionKey)
	if err != nil {
		return err
	}
	if record == nil {
		record = session.NewRecord(sessionKey, agentID)
	}
	mutate(record)
	return s.sessions.Put(record)
}

// updateExistingSession mutates the session record if it exists. A missing
// record is not an error: the session may have been pruned mid-flow.
func (s *Service) updateExistingSession(sessionKey string, mutate func(*session.Record)) error {
	record, err := s.sessions.Get(sessionKey)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	mutate(record)
	return s.sessions.Put(record)
}

func (s *Service) allServices() []string {
	services := make([]string, 0, len(s.cfg.Services))
	for name := range s.cfg.Services {
		services = append(services, name)
	}
	sort.Strings(services)
	return services
}

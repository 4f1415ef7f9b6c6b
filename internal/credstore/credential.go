package credstore

import (
	"time"

	"golang.org/x/oauth2"

	"agentauth/pkg/oauth"
)

// Credential represents durable delegated access to one external account on
// behalf of one conversation. The (AgentID, SessionKey, Account) tuple is the
// credential's identity; exactly one live file exists per tuple and a refresh
// overwrites it in place.
type Credential struct {
	// Account is the external account the credential grants access to.
	Account string `json:"account"`

	// SessionKey and AgentID scope the credential to its owning conversation
	// and agent namespace. Credentials are never shared across sessions.
	SessionKey string `json:"session_key"`
	AgentID    string `json:"agent_id"`

	// AccessToken is the short-lived bearer credential.
	AccessToken string `json:"access_token"`

	// RefreshToken mints new access tokens. May be empty when the provider
	// did not issue one (e.g. repeat consent without refresh rotation).
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// Expiry is when the access token expires.
	Expiry time.Time `json:"expiry,omitempty"`

	// CreatedAt is when the credential was first issued. It survives
	// refreshes.
	CreatedAt time.Time `json:"created_at"`

	// Services is the set of logical capability groups actually granted,
	// which may be a subset of what the flow requested.
	Services []string `json:"services,omitempty"`
}

// FromToken builds a Credential from a provider token exchange response.
func FromToken(agentID, sessionKey, account string, token *oauth.Token, services []string) *Credential {
	return &Credential{
		Account:      account,
		SessionKey:   sessionKey,
		AgentID:      agentID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.ExpiresAt,
		CreatedAt:    time.Now(),
		Services:     append([]string(nil), services...),
	}
}

// ToOAuth2Token converts the credential to an oauth2.Token for callers that
// hand it to golang.org/x/oauth2-based API clients.
func (c *Credential) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

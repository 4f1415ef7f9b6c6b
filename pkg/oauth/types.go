package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// TokenRefreshThreshold is the duration before token expiry when tokens
// should be proactively refreshed. Tokens expiring within this threshold are
// refreshed automatically if a refresh token is available. This is shared by
// the credential store and the CLI so behavior stays consistent.
const TokenRefreshThreshold = 5 * time.Minute

// Token represents an OAuth access token with associated metadata.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the token lifetime in seconds (from the token response).
	ExpiresIn int `json:"expires_in,omitempty"`

	// ExpiresAt is the calculated expiration timestamp.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token (if available).
	IDToken string `json:"id_token,omitempty"`
}

// IsExpired checks if the token has expired.
// Returns true if the token is expired or will expire within the default margin.
func (t *Token) IsExpired() bool {
	return t.IsExpiredWithMargin(DefaultExpiryMargin)
}

// IsExpiredWithMargin checks if the token has expired or will expire within the margin.
func (t *Token) IsExpiredWithMargin(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false // Tokens without expiration don't expire
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// SetExpiresAtFromExpiresIn calculates and sets ExpiresAt from ExpiresIn.
func (t *Token) SetExpiresAtFromExpiresIn() {
	if t.ExpiresIn > 0 && t.ExpiresAt.IsZero() {
		t.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

// Scopes returns the scope as a slice of individual scopes.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the Token to an oauth2.Token for compatibility with
// golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}

	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}

	return token
}

// Endpoints holds the provider URLs used by the client. All three may be
// configured explicitly; when only Issuer is set, the authorization, token and
// revocation endpoints are resolved via metadata discovery.
type Endpoints struct {
	// Issuer is the authorization server's issuer identifier, used for
	// metadata discovery when the explicit endpoints are not configured.
	Issuer string

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string

	// RevocationEndpoint is the URL of the RFC 7009 token revocation endpoint.
	// Optional; revocation is skipped when neither configured nor discovered.
	RevocationEndpoint string
}

// Complete reports whether the endpoints needed for an authorization flow are
// all present without discovery.
func (e Endpoints) Complete() bool {
	return e.AuthorizationEndpoint != "" && e.TokenEndpoint != ""
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in
// RFC 8414. Only the fields this client consumes are modeled.
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RevocationEndpoint is the URL of the token revocation endpoint.
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// GrantTypesSupported lists the grant types supported.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`
}

// Endpoints converts discovered metadata into an Endpoints value.
func (m *Metadata) Endpoints() Endpoints {
	return Endpoints{
		Issuer:                m.Issuer,
		AuthorizationEndpoint: m.AuthorizationEndpoint,
		TokenEndpoint:         m.TokenEndpoint,
		RevocationEndpoint:    m.RevocationEndpoint,
	}
}

// ProviderError is an error response from the provider's token endpoint,
// as defined in RFC 6749 section 5.2.
type ProviderError struct {
	// Code is the machine-readable error code (e.g. "invalid_grant").
	Code string `json:"error"`

	// Description is the human-readable error description.
	Description string `json:"error_description,omitempty"`

	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Description != "" {
		return "provider error " + e.Code + ": " + e.Description
	}
	return "provider error " + e.Code
}

// IsInvalidGrant reports whether the error indicates a rejected grant, which
// for refresh requests means the refresh token was revoked or expired upstream.
func (e *ProviderError) IsInvalidGrant() bool {
	return e.Code == "invalid_grant"
}

// Package oauth implements the provider-facing half of the delegated-access
// subsystem: the OAuth 2.0 protocol operations against a single configured
// authorization server.
//
// The package provides:
//   - Token types with expiry margin handling and golang.org/x/oauth2 interop
//   - State parameter generation with 256 bits of entropy
//   - Authorization URL construction
//   - Authorization-code exchange, refresh-token grants and RFC 7009 revocation
//   - RFC 8414 / OIDC metadata discovery with TTL caching and singleflight
//     deduplication, for providers whose endpoints are not configured explicitly
//
// Errors returned by the provider's token endpoint are surfaced as
// *ProviderError so callers can distinguish rejected grants (revoked refresh
// tokens) from transport failures.
//
// This package has no knowledge of sessions, agents, pending flows or
// credential storage; those live in the internal packages that compose it.
package oauth

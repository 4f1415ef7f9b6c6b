// Package config loads and validates the agentauth configuration.
//
// Configuration lives in a single YAML file (config.yaml) inside the agentauth
// config directory, by default ~/.config/agentauth. Loading starts from the
// built-in defaults (GetDefaultConfig) and overlays whatever the file sets, so
// a minimal file only needs the provider credentials:
//
//	provider:
//	  clientId: my-client-id
//	  clientSecret: my-client-secret
//	  issuer: https://accounts.provider.example
//
// The services map translates the logical capability groups agents request
// ("mail", "calendar", "files") into provider scope URIs. The callback section
// lists candidate loopback ports for the redirect listener, and the flow
// section bounds how long an authorization link stays usable.
//
// A Watcher is provided for long-running processes that want to pick up
// provider credential rotation without a restart.
package config

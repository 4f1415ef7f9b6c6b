// Package logging provides structured logging for agentauth, built on the
// standard library slog package.
//
// Every log entry is tagged with a subsystem name so that output from the
// flow coordinator, callback listener, credential store and notification
// dispatcher can be told apart in a single stream. The Error helper takes the
// error as an explicit argument and records it as a structured attribute.
//
// Credential material must never be passed to this package. Callers log only
// identifiers (agent ID, session key, account) and timestamps.
//
// Usage:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("CredStore", "Stored credential for %s", account)
//	logging.Error("Callback", err, "Token exchange failed")
package logging

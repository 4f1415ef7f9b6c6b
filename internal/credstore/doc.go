// Package credstore persists, refreshes and revokes the delegated-access
// credentials the callback listener commits after a successful token
// exchange.
//
// Storage layout is one JSON file per (agentID, sessionKey, account) tuple
// under an agent-scoped directory:
//
//	<root>/<agentID>/<sha256(sessionKey, account)>.json
//
// Files are owner-only (0600 inside 0700 directories) and written atomically,
// so a crash mid-save never leaves a torn credential behind. Exactly one live
// file exists per tuple; refreshes overwrite in place and preserve CreatedAt.
//
// GetValid is the main read path: it loads, refreshes proactively inside the
// expiry buffer, and converts refresh failure into "no valid credential" so
// the caller's only decision is whether to start a new authorization flow.
// Concurrent refreshes of one credential collapse into a single provider call
// via singleflight; the last writer wins on disk either way.
//
// Revocation is best-effort upstream and unconditional locally: the file is
// deleted even when the provider cannot be reached, and revoking a missing
// credential is a no-op.
package credstore

// Package app bootstraps the authorization daemon. It loads configuration,
// constructs every component in dependency order and runs the daemon's
// lifecycle. CLI commands reuse the same bootstrap to get a fully wired
// subsystem in-process.
package app

// Package notify turns flow outcomes into conversational follow-up messages.
//
// The dispatcher sits between the callback listener and the platform's
// message pipeline. It owns the outcome wording (success, timeout, declined,
// failed) and the drop-don't-fail policy for sessions that no longer exist.
package notify

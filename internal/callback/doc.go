// Package callback runs the loopback HTTP listener that receives provider
// redirects for every in-flight authorization flow.
//
// The listener correlates each redirect to a pending flow by its state token,
// consuming the flow exactly once, and hands completion to a Completer. The
// HTTP responses it renders are for the human in the browser; everything the
// conversation needs to know travels through the Completer's notifications.
package callback

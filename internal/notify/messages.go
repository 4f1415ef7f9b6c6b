package notify

import (
	"fmt"
	"strings"
)

// Flow outcome message markers. The agent-facing surfaces detect outcome
// kinds by these prefixes, so message generation and detection must stay
// synchronized.
const (
	// MsgConnected marks a successful authorization.
	MsgConnected = "Connected"

	// MsgTimedOut marks an authorization link that expired unused.
	MsgTimedOut = "Authorization timed out"

	// MsgDeclined marks a consent screen the user declined.
	MsgDeclined = "Authorization was declined"

	// MsgFailed marks a technical failure during the flow.
	MsgFailed = "Authorization failed"
)

// ReasonAccessDenied is the provider error code for a declined consent
// screen. It gets a friendlier message than generic provider errors.
const ReasonAccessDenied = "access_denied"

func successText(account string, grantedServices []string) string {
	if len(grantedServices) == 0 {
		return fmt.Sprintf("%s: %s is now linked to this conversation.", MsgConnected, account)
	}
	return fmt.Sprintf("%s: %s is now linked to this conversation with access to %s.",
		MsgConnected, account, strings.Join(grantedServices, ", "))
}

func timeoutText(account string) string {
	return fmt.Sprintf("%s: the link for %s expired before it was used. Just ask again and I'll send a fresh one.",
		MsgTimedOut, account)
}

func declinedText(account string) string {
	return fmt.Sprintf("%s: no problem. Access to %s stays unlinked. Ask again any time if you change your mind.",
		MsgDeclined, account)
}

func errorText(account, reason string) string {
	return fmt.Sprintf("%s: could not finish linking %s (%s). Please try again.",
		MsgFailed, account, reason)
}

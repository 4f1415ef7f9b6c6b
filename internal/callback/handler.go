package callback

import (
	"html/template"
	"net/http"
	"time"

	"agentauth/internal/notify"
	"agentauth/pkg/logging"
)

var (
	successTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

type errorPage struct {
	Title   string
	Message string
}

// handleCallback processes one provider redirect. Every branch consumes the
// pending flow at most once, so a replayed redirect for the same state falls
// through to the unknown-state response and cannot trigger a second exchange
// or a second notification.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")
	providerErr := query.Get("error")

	if providerErr != "" {
		if pending, ok := s.registry.Consume(state); ok {
			s.completer.FailFlow(r.Context(), pending, providerErr)
		}
		logging.Warn("Callback", "Provider returned error %q for state %s...", providerErr, truncateState(state))
		if providerErr == notify.ReasonAccessDenied {
			renderError(w, http.StatusOK, errorPage{
				Title:   "Authorization declined",
				Message: "No access was granted. Your conversation has been told, and nothing was linked.",
			})
			return
		}
		renderError(w, http.StatusOK, errorPage{
			Title:   "Authorization failed",
			Message: "The provider reported an error. Your conversation has been told, so you can retry from there.",
		})
		return
	}

	if code == "" || state == "" {
		renderError(w, http.StatusBadRequest, errorPage{
			Title:   "Invalid request",
			Message: "The callback was missing required parameters.",
		})
		return
	}

	pending, ok := s.registry.Consume(state)
	if !ok {
		// Unknown and already-used states are deliberately indistinguishable.
		logging.Warn("Callback", "Callback with unknown state %s...", truncateState(state))
		renderError(w, http.StatusBadRequest, errorPage{
			Title:   "Unknown authorization link",
			Message: "This link was already used or is not recognized. Request a new one from your conversation.",
		})
		return
	}

	if pending.Expired(time.Now()) {
		s.completer.ExpireFlow(r.Context(), pending)
		renderError(w, http.StatusBadRequest, errorPage{
			Title:   "Link expired",
			Message: "This authorization link expired before it was used. Request a new one from your conversation.",
		})
		return
	}

	if err := s.completer.CompleteFlow(r.Context(), pending, code); err != nil {
		logging.Error("Callback", err, "Failed to complete flow for %s", pending.Account)
		renderError(w, http.StatusInternalServerError, errorPage{
			Title:   "Authorization failed",
			Message: "Something went wrong while finishing the authorization. Your conversation has been told, so you can retry from there.",
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := successTmpl.Execute(w, nil); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func renderError(w http.ResponseWriter, status int, page errorPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorTmpl.Execute(w, page); err != nil {
		logging.Error("Callback", err, "Failed to render error page")
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

// truncateState keeps state tokens out of the logs while leaving enough to
// correlate with earlier entries.
func truncateState(state string) string {
	if len(state) <= 8 {
		return state
	}
	return state[:8]
}

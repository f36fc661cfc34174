package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/docportal"
)

// RetryAfterSeconds is sent with 503 responses while the session resolves.
const RetryAfterSeconds = "1"

// SnapshotFromContext returns the snapshot the request was admitted with.
func SnapshotFromContext(r *http.Request) (docportal.Snapshot, bool) {
	return docportal.SnapshotFromContext(r.Context())
}

// RequireSession admits requests from any signed-in identity.
func RequireSession(gate *docportal.Gate) func(http.Handler) http.Handler {
	return Guard(gate, false)
}

// RequireAdmin admits requests from identities with the admin role.
func RequireAdmin(gate *docportal.Gate) func(http.Handler) http.Handler {
	return Guard(gate, true)
}

// Guard consults gate on every request. A resolving session yields 503 with
// Retry-After. Redirect verdicts become a 303 for browser navigations and a
// 401 or 403 JSON body carrying the target for API clients. Admitted requests
// carry the snapshot in their context.
func Guard(gate *docportal.Gate, requireAdmin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				writeRejection(w, http.StatusServiceUnavailable, rejection{
					Status:  "error",
					Code:    "gate_unavailable",
					Message: "session gate not configured",
				})
				return
			}

			v := gate.Admit(r.Context(), requireAdmin)
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Add("Vary", "Accept")

			switch v.Decision {
			case docportal.DecisionRender:
				next.ServeHTTP(w, r.WithContext(docportal.WithSnapshot(r.Context(), v.Snapshot)))

			case docportal.DecisionLoading:
				w.Header().Set("Retry-After", RetryAfterSeconds)
				writeRejection(w, http.StatusServiceUnavailable, rejection{
					Status:  "error",
					Code:    "session_resolving",
					Message: "session is still resolving",
				})

			default:
				redirect(w, r, v)
			}
		})
	}
}

type rejection struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
	Replace  bool   `json:"replace,omitempty"`
}

func redirect(w http.ResponseWriter, r *http.Request, v docportal.Verdict) {
	if wantsHTML(r) {
		http.Redirect(w, r, v.Location, http.StatusSeeOther)
		return
	}

	status, body := http.StatusUnauthorized, rejection{
		Status:   "error",
		Code:     "unauthenticated",
		Message:  "sign in required",
		Redirect: v.Location,
		Replace:  v.Hard,
	}
	if v.Decision == docportal.DecisionRedirectPublic {
		status = http.StatusForbidden
		body.Code = "forbidden"
		body.Message = "admin role required"
	}
	writeRejection(w, status, body)
}

// wantsHTML reports whether r is a browser page navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeRejection(w http.ResponseWriter, status int, body rejection) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package handlers

import (
	"net/http"

	"github.com/julienstroheker/wsrelay/internal/logging"
)

// HealthHandler handles liveness requests
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	_ = logging.FromContext(r.Context())

	// Only accept GET requests
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	// Ignore write error for health check as status is already set
	_, _ = w.Write([]byte("OK"))
}

// NewReadyHandler reports 200 while ready returns true and 503 otherwise.
// A nil ready function is treated as always ready.
func NewReadyHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if ready != nil && !ready() {
			logging.FromContext(r.Context()).Debug("Readiness probe failed, listener is not accepting")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}

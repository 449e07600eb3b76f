package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"
)

// APIKeyHeader carries the client credential.
const APIKeyHeader = "X-Clinico-Api-Key"

// requireAPIKey rejects requests whose key header does not match the
// configured key. /healthz and /metrics stay open for probes and scrapers.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if !s.checkAPIKey {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Status:  "error",
				Message: "Unauthorized: Invalid API Key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests emits one structured log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

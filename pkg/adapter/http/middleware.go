package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/metrics"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// observe records every request under its chi route pattern. Unmatched
// paths are labelled "unmatched" to keep cardinality bounded.
func observe(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestStarted()
			defer m.RequestFinished()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			duration := time.Since(start)
			m.RecordRequest(r.Method, route, rec.status, duration)
			logger.Debug("http: %s %s -> %d in %v", r.Method, route, rec.status, duration)
		})
	}
}

// requireSession rejects requests without a valid bearer session token and
// stores the session in the request context.
func requireSession(s *sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
				return
			}

			session, err := s.verify(token)
			if err != nil {
				logger.Debug("http: session rejected from %s: %v", r.RemoteAddr, err)
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

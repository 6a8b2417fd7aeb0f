package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"procodus.dev/drip-monitor/pkg/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// principalFrom returns the authenticated principal attached by requireAuth.
func principalFrom(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(auth.Principal)
	return p, ok
}

// requireAuth resolves the bearer token (Authorization header, or the
// token query parameter for websocket dials, which cannot set headers
// from browsers) into a principal and attaches it to the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		principal, err := s.verifier.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next(w, r.WithContext(ctx))
	}
}

// requireOperator rejects non-operator principals. Used for device
// registration, assignment, commands, and the unscoped alert listing.
func (s *Server) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok || principal.Role != auth.RoleOperator {
			if s.metrics != nil {
				s.metrics.AccessDenied.Inc()
			}
			respondError(w, http.StatusForbidden, "Forbidden: insufficient permissions")
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// limitParam parses the limit query parameter, falling back to def when
// absent or unparseable.
func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request counts and durations per route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

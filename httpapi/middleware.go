package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/metrics"
	"github.com/open-runtimes/executor/utils/logger"
)

type ctxKeyRequestID struct{}

// requestIDMiddleware stamps every request with an X-Request-Id, generating
// one when the caller didn't supply it, and scopes the logger to it.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware emits one structured log line per request.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := routePattern(r)
		metrics.RequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		logger.Log(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routePattern prefers chi's matched route template (so /v1/runtimes/{id}
// doesn't fragment metrics cardinality by id) and falls back to the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// authMiddleware enforces the bearer executor secret on every /v1 route;
// a missing or invalid key yields a fixed 401 body.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix || authz[len(prefix):] != s.secret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing executor key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSON(w, apierrors.GeneralRouteNotFound("Route not found"))
}

// Package httpapi wires the executor's HTTP surface: routing, bearer-secret
// authentication, request logging, and the /v1 runtime endpoints.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/open-runtimes/executor/invoke"
	"github.com/open-runtimes/executor/logstream"
	"github.com/open-runtimes/executor/orchestrator"
	"github.com/open-runtimes/executor/utils/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server bundles the chi router with the components it dispatches to.
type Server struct {
	router       chi.Router
	orchestrator *orchestrator.Orchestrator
	invoker      *invoke.Invoker
	streamer     *logstream.Streamer
	secret       string
	httpServer   *http.Server
}

func New(port int, secret string, orch *orchestrator.Orchestrator, inv *invoke.Invoker, stream *logstream.Streamer) *Server {
	s := &Server{
		orchestrator: orch,
		invoker:      inv,
		streamer:     stream,
		secret:       secret,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/runtimes", s.handleCreate)
		r.Get("/runtimes", s.handleList)
		r.Get("/runtimes/{runtimeId}", s.handleDescribe)
		r.Delete("/runtimes/{runtimeId}", s.handleDelete)
		r.Post("/runtimes/{runtimeId}/executions", s.handleExecute)
		r.Post("/runtimes/{runtimeId}/execution", s.handleExecute)
		r.Post("/runtimes/{runtimeId}/commands", s.handleCommand)
		r.Get("/runtimes/{runtimeId}/logs", s.handleLogs)
	})

	r.NotFound(s.handleNotFound)

	s.router = r
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	logger.Infof("executor listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within the context's
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

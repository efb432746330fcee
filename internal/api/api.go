// Package api serves a small admin HTTP surface: health, status, and
// Prometheus metrics. It is shared by cmd/pgserver and cmd/pgproxy.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brineport/pgwire/internal/metrics"
)

// StatusFunc returns a snapshot of whatever the embedding component
// considers worth reporting (connection counts, uptime, etc).
type StatusFunc func() map[string]any

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds a Server wired to addr, polling status via
// statusFn and exposing m's registry at /metrics.
func NewServer(addr string, m *metrics.Collector, statusFn StatusFunc) *Server {
	router := mux.NewRouter()
	s := &Server{startTime: time.Now()}

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus(statusFn)).Methods(http.MethodGet)
	if m != nil {
		router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. Listen errors other than a
// clean shutdown are sent to errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(statusFn StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"uptime_seconds": time.Since(s.startTime).Seconds(),
		}
		if statusFn != nil {
			for k, v := range statusFn() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

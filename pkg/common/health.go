// Package common provides shared infrastructure helpers used across services.
package common

import (
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer exposes liveness and readiness endpoints for orchestration
// platforms. Liveness always succeeds while the process runs; readiness
// reflects the provided atomic flag.
type HealthServer struct {
	server *http.Server
	ready  *atomic.Bool
}

// NewHealthServer creates and starts a health server on the default port.
// The ready flag should be flipped to true once the service has finished
// initializing its dependencies.
func NewHealthServer(ready *atomic.Bool) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:         ":8081",
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		ready: ready,
	}

	mux.HandleFunc("/v1/health", hs.handleHealth)
	mux.HandleFunc("/v1/readiness", hs.handleReadiness)

	go func() {
		// Error is surfaced on Shutdown; ErrServerClosed is expected.
		_ = hs.server.ListenAndServe()
	}()

	return hs
}

// Server returns the underlying http server for shutdown control.
func (h *HealthServer) Server() *http.Server { return h.server }

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil || !h.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cprqa/internal/core/ports"
)

type healthChecker interface {
	Check(ctx context.Context) ports.HealthStatus
}

// ObservabilityServer exposes /metrics and /health for the serve command.
type ObservabilityServer struct {
	addr   string
	health healthChecker
	server *http.Server
	bound  string
}

func NewObservabilityServer(addr string, health healthChecker) *ObservabilityServer {
	return &ObservabilityServer{addr: addr, health: health}
}

// Start binds the listener before returning so a taken port fails the
// command instead of a background goroutine.
func (s *ObservabilityServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.bound = ln.Addr().String()
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("observability server starting", "addr", s.bound)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "error", err)
		}
	}()
	return nil
}

func (s *ObservabilityServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("health response write failed", "error", err)
	}
}

// Addr is the bound address, useful when the configured port is 0.
func (s *ObservabilityServer) Addr() string {
	return s.bound
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

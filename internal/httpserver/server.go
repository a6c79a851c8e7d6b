// Package httpserver exposes the worker's /health and /metrics endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	service         = "hunter-worker"
	checkTimeout    = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Check probes one dependency; a nil error means healthy.
type Check func(ctx context.Context) error

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Server serves health and Prometheus metrics.
type Server struct {
	srv     *http.Server
	version string
	checks  map[string]Check
	log     *zap.Logger
}

// New builds a Server on addr. checks are keyed by dependency name.
func New(addr, version string, checks map[string]Check, log *zap.Logger) *Server {
	s := &Server{
		version: version,
		checks:  checks,
		log:     log.With(zap.String("component", "http")),
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.srv.Addr), zap.String("version", s.version))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Service: service, Version: s.version}
	code := http.StatusOK

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(names))
		}
		if err := s.checks[name](ctx); err != nil {
			s.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

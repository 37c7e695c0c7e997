package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenostudy/zeno/internal/service"
)

// Server is the inbound HTTP transport: it owns the listener, the metrics
// registry, and the middleware chain around the API and admin handlers.
type Server struct {
	svc    *service.SubmissionService
	state  *service.MaintenanceState
	addr   string
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *Metrics

	admin  http.Handler
	server *http.Server
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8080"
// (localhost only).
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the transport. The metrics registry is created here so
// the admin handler can share it; see Metrics.
func NewServer(svc *service.SubmissionService, state *service.MaintenanceState, opts ...Option) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		svc:      svc,
		state:    state,
		addr:     "127.0.0.1:8080",
		logger:   slog.Default(),
		registry: reg,
		metrics:  NewMetrics(reg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the server's metric set for handlers constructed outside
// this package.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// SetAdminHandler mounts the admin API. Must be called before Start.
func (s *Server) SetAdminHandler(h http.Handler) {
	s.admin = h
}

// Handler builds the full route table with the middleware chain applied.
// Middleware order (outermost first): metrics, request ID, security headers,
// maintenance gate.
func (s *Server) Handler() http.Handler {
	api := NewAPIHandler(s.svc, s.metrics, s.logger)

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))
	if s.admin != nil {
		mux.Handle("/admin/api/", s.admin)
	}
	mux.Handle("/api/", api.Routes())
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var handler http.Handler = mux
	handler = MaintenanceMiddleware(s.state)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = RequestIDMiddleware(s.logger)(handler)
	handler = MetricsMiddleware(s.metrics)(handler)
	return handler
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown drains in-flight requests with a bounded grace period.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}

package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/config"
	"github.com/atelierhq/atelier-auction-backend/internal/metrics"
)

// RouterConfig assembles the API routes and their middleware stack.
type RouterConfig struct {
	Handler *Handler
	Health  *HealthHandler
	Logger  *slog.Logger

	// Metrics is mounted at GET /metrics when set (the prometheus
	// exporter's HTTP handler).
	Metrics http.Handler

	Registry    *metrics.Registry
	Tracer      trace.Tracer
	RateLimiter *RateLimiterMiddleware
}

// NewRouter mounts all routes and wraps them in the standard middleware
// chain: request id, logging, recovery, security headers, then metrics,
// tracing, and rate limiting when configured.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	cfg.Handler.RegisterRoutes(mux)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	middlewares := []Middleware{
		RequestIDMiddleware(),
		LoggingMiddleware(cfg.Logger),
		RecoveryMiddleware(cfg.Logger),
		SecurityHeadersMiddleware(),
	}
	if cfg.Registry != nil {
		middlewares = append(middlewares, MetricsMiddleware(cfg.Registry))
	}
	if cfg.Tracer != nil {
		middlewares = append(middlewares, TracingMiddleware(cfg.Tracer))
	}
	if cfg.RateLimiter != nil {
		middlewares = append(middlewares, cfg.RateLimiter.Middleware())
	}

	return Chain(mux, middlewares...)
}

// Server runs the HTTP API with graceful shutdown.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func NewServer(cfg *config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Port),
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    2 * time.Minute,
			MaxHeaderBytes: 1 << 20,
		},
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("api server draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	s.logger.Info("api server stopped")
	return nil
}

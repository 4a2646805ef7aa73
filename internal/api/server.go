package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/harvest/backend/pkg/config"
	"github.com/wonny/harvest/backend/pkg/logger"
)

// Server is an HTTP listener with graceful shutdown
// ⭐ SSOT: listener timeouts live in this file only
type Server struct {
	name       string
	httpServer *http.Server
	logger     *logger.Logger
}

// New creates the API server on cfg.Port
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	// CSV exports and batch listings stream larger bodies than the other routes
	return newServer("api", cfg.Port, router, 60*time.Second, log.WithField("env", cfg.Env))
}

// NewMetrics creates a listener on cfg.MetricsPort serving only /metrics,
// for processes without the API router (worker, scheduler)
func NewMetrics(cfg *config.Config, log *logger.Logger, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return newServer("metrics", cfg.MetricsPort, mux, 10*time.Second, log)
}

func newServer(name, port string, handler http.Handler, writeTimeout time.Duration, log *logger.Logger) *Server {
	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: log.WithFields(map[string]interface{}{
			"server": name,
			"port":   port,
		}),
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving until Shutdown
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", s.name, err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", s.name, err)
	}

	return nil
}

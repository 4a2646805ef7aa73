package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/harvest/backend/internal/api"
	"github.com/wonny/harvest/backend/internal/api/handlers"
	"github.com/wonny/harvest/backend/internal/forecast"
	"github.com/wonny/harvest/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the REST API server.

The API never trains: verification events and manual full runs only
enqueue retraining jobs for the worker.

Endpoints:
  GET  /health                       - Health check
  GET  /metrics                      - Prometheus metrics
  POST /api/verification/events      - Record status changes for one action
  GET  /api/forecasts/current        - Current (non-shadowed) forecasts
  GET  /api/forecasts/export.csv     - Current forecasts as CSV
  GET  /api/forecasts/chart          - Chart grid for one segment
  POST /api/forecasts/full-run       - Queue a full run (rate limited)
  GET  /api/batches                  - Latest forecast batches
  GET  /api/jobs, /api/jobs/{id}     - Retraining job status
  GET  /ws/jobs                      - Job event stream

Example:
  go run ./cmd/harvest api
  go run ./cmd/harvest api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Harvest Forecast API Server ===")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}
	log := a.log

	charts := forecast.NewChartService(a.aggregator, a.generator, a.cfg.Forecast.OverallMunicipalityID, a.cfg.Forecast.HorizonMonths)
	limiter := redis.NewRateLimiter(a.redis, "harvest")

	router := api.NewRouter(api.Handlers{
		Verification: handlers.NewVerificationHandler(a.dispatcher, log),
		Forecast: handlers.NewForecastHandler(a.results, charts, a.dispatcher, a.cache, limiter, handlers.FullRunLimits{
			Limit:  a.cfg.Dispatch.FullRunLimit,
			Window: a.cfg.Dispatch.FullRunWindow,
		}, log),
		Jobs: handlers.NewJobHandler(a.queue, a.redis, log),
	}, a.registry, log)

	server := api.New(a.cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

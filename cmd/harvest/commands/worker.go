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
	"github.com/wonny/harvest/backend/internal/dispatch"
	"github.com/wonny/harvest/backend/pkg/httputil"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Retraining worker",
	Long: `Background worker that claims retraining jobs from PostgreSQL.

Each job runs exactly one forecast batch (full or selective). Failed jobs
are not retried; the scheduled full run is the safety net.

Example:
  go run ./cmd/harvest worker start
  go run ./cmd/harvest worker start --concurrency 4
  go run ./cmd/harvest worker status`,
}

// workerStartCmd represents the start subcommand
var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker",
	RunE:  runWorkerStart,
}

var workerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue statistics for the last day",
	RunE:  runWorkerStatus,
}

var (
	workerConcurrency int
	workerOnce        bool
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerStartCmd)
	workerCmd.AddCommand(workerStatusCmd)

	workerStartCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "concurrent jobs (default from WORKER_CONCURRENCY)")
	workerStartCmd.Flags().BoolVar(&workerOnce, "once", false, "drain the queue and exit")
}

func runWorkerStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Harvest Retraining Worker ===")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := dispatch.WorkerOptions{
		Concurrency:  a.cfg.Worker.Concurrency,
		PollInterval: a.cfg.Worker.PollInterval,
		JobTimeout:   a.cfg.Worker.JobTimeout,
	}
	if workerConcurrency > 0 {
		opts.Concurrency = workerConcurrency
	}

	notifier := dispatch.NewWebhookNotifier(httputil.New(a.log, 10*time.Second), a.cfg.Dispatch.NotifyWebhookURL)
	var n dispatch.Notifier
	if notifier != nil {
		n = notifier
	}
	worker := dispatch.NewWorker(a.queue, a.coordinator, a.redis, n, opts, a.metrics, a.log)

	if workerOnce {
		processed := 0
		for {
			ok, err := worker.RunOnce(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			processed++
		}
		fmt.Printf("✅ Processed %d job(s)\n", processed)
		return nil
	}

	if a.cfg.MetricsEnabled {
		srv := api.NewMetrics(a.cfg, a.log, a.registry)
		go func() {
			if err := srv.Start(); err != nil {
				a.log.WithError(err).Error("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Printf("Concurrency: %d | Poll: %s | Job timeout: %s\n", opts.Concurrency, opts.PollInterval, opts.JobTimeout)
	fmt.Println("🚀 Worker started, press Ctrl+C to stop gracefully")

	worker.Start(ctx)

	fmt.Println("✅ Worker stopped gracefully")
	return nil
}

func runWorkerStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.queue.Stats(ctx)
	if err != nil {
		return err
	}

	PrintSection("Retrain Jobs (last 24h)")
	fmt.Printf("  Queued    : %d\n", stats.Queued)
	fmt.Printf("  Running   : %d\n", stats.Running)
	fmt.Printf("  Completed : %d\n", stats.Completed)
	fmt.Printf("  Failed    : %d\n", stats.Failed)

	jobs, err := a.queue.List(ctx, 10)
	if err != nil {
		return err
	}
	PrintSection("Recent Jobs")
	for _, j := range jobs {
		fmt.Printf("  %s  %-9s %-9s %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"), j.Mode, j.Status, j.ID)
		if j.Error != "" {
			fmt.Printf("      error: %s\n", j.Error)
		}
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/harvest/backend/internal/scheduler"
	"github.com/wonny/harvest/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage scheduled jobs",
	Long: `Start the scheduler or inspect its jobs.

Subcommands:
  start   - Start the scheduler daemon
  list    - List registered jobs
  run     - Run one job immediately
  status  - Show job schedules

Example:
  go run ./cmd/harvest scheduler start
  go run ./cmd/harvest scheduler list
  go run ./cmd/harvest scheduler run forecast_full_run`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Start the scheduler and register every job.

Registered jobs:
- forecast_full_run: daily full retraining run (FULL_RUN_SCHEDULE)
- retrain_job_cleanup: daily removal of finished jobs past JOB_RETENTION_DAYS

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job schedules",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Harvest Scheduler ===")

	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	result, err := sched.RunJobNow(ctx, jobName)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("❌ job %s failed after %d attempt(s): %s", jobName, result.Attempts, result.Error)
	}

	fmt.Printf("✅ Job %s completed in %s (%d attempt(s))\n", jobName, result.Duration.Round(time.Millisecond), result.Attempts)
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	PrintSection("Scheduled Jobs")
	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		s := stats[name]
		fmt.Printf("  %-22s %s\n", name, s.Schedule)
	}

	queue, err := a.queue.Stats(context.Background())
	if err != nil {
		return err
	}
	PrintSection("Retrain Jobs (last 24h)")
	fmt.Printf("  queued=%d running=%d completed=%d failed=%d\n", queue.Queued, queue.Running, queue.Completed, queue.Failed)

	return nil
}

// initScheduler wires the application and registers every job
func initScheduler(ctx context.Context) (*app, *scheduler.Scheduler, error) {
	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	// Only the enqueue is retried; a failed batch is left to the next run
	sched := scheduler.New(a.log).WithRetry(2, 30*time.Second)

	for _, job := range []scheduler.Job{
		jobs.NewForecastFullRunJob(a.dispatcher, a.cfg.Dispatch.FullRunSchedule, a.log),
		jobs.NewRetrainJobCleanupJob(a.queue, a.cfg.Dispatch.JobRetentionDays, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return a, sched, nil
}

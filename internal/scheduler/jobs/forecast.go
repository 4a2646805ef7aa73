package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/logger"
)

// FullRunTrigger enqueues full runs
type FullRunTrigger interface {
	TriggerFull(ctx context.Context, actor, note string) (*contracts.DispatchResult, error)
}

// ForecastFullRunJob queues the periodic full run that catches anything
// selective retraining missed
type ForecastFullRunJob struct {
	dispatcher FullRunTrigger
	schedule   string
	logger     *logger.Logger
}

// NewForecastFullRunJob creates a new full-run job
func NewForecastFullRunJob(dispatcher FullRunTrigger, schedule string, log *logger.Logger) *ForecastFullRunJob {
	if schedule == "" {
		schedule = "0 0 2 * * *"
	}
	return &ForecastFullRunJob{
		dispatcher: dispatcher,
		schedule:   schedule,
		logger:     log,
	}
}

// Name returns the job name
func (j *ForecastFullRunJob) Name() string {
	return "forecast_full_run"
}

// Schedule returns the cron schedule (02:00 daily by default)
func (j *ForecastFullRunJob) Schedule() string {
	return j.schedule
}

// Run enqueues one full run; a worker picks it up
func (j *ForecastFullRunJob) Run(ctx context.Context) error {
	res, err := j.dispatcher.TriggerFull(ctx, "scheduler", "scheduled full run")
	if err != nil {
		return fmt.Errorf("queue full run: %w", err)
	}

	j.logger.WithJob(res.JobID, string(res.Mode)).Info("Scheduled full run queued")
	return nil
}

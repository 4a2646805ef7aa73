package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/harvest/backend/pkg/logger"
)

// JobPruner deletes finished retraining jobs
type JobPruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetrainJobCleanupJob prunes finished retraining jobs past retention
type RetrainJobCleanupJob struct {
	pruner    JobPruner
	retention time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

// NewRetrainJobCleanupJob creates a new cleanup job
func NewRetrainJobCleanupJob(pruner JobPruner, retentionDays int, log *logger.Logger) *RetrainJobCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetrainJobCleanupJob{
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *RetrainJobCleanupJob) Name() string {
	return "retrain_job_cleanup"
}

// Schedule returns the cron schedule (03:30 daily)
func (j *RetrainJobCleanupJob) Schedule() string {
	return "0 30 3 * * *"
}

// Run deletes completed and failed jobs older than the retention window
func (j *RetrainJobCleanupJob) Run(ctx context.Context) error {
	removed, err := j.pruner.Prune(ctx, j.now().Add(-j.retention))
	if err != nil {
		return fmt.Errorf("prune retrain jobs: %w", err)
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Retrain job cleanup completed")
	}
	return nil
}

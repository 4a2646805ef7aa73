package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/internal/metrics"
	"github.com/wonny/harvest/backend/pkg/logger"
)

// Runner executes forecast batches
type Runner interface {
	RunFull(ctx context.Context, opts contracts.RunOptions) (*contracts.BatchReport, error)
	RunSelective(ctx context.Context, pairs []contracts.SegmentPair, opts contracts.RunOptions) (*contracts.BatchReport, error)
}

// Notifier is told about jobs that failed
type Notifier interface {
	JobFailed(ctx context.Context, job *contracts.Job) error
}

// WorkerOptions configures a Worker
type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Worker claims queued retraining jobs and runs one batch per job
// ⭐ SSOT: training happens only here and in the forecast CLI
type Worker struct {
	queue     contracts.JobQueue
	runner    Runner
	publisher Publisher
	notifier  Notifier
	opts      WorkerOptions
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a worker. publisher and notifier may be nil.
func NewWorker(queue contracts.JobQueue, runner Runner, publisher Publisher, notifier Notifier, opts WorkerOptions, m *metrics.Metrics, log *logger.Logger) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Worker{
		queue:     queue,
		runner:    runner,
		publisher: publisher,
		notifier:  notifier,
		opts:      opts,
		metrics:   m,
		logger:    log.WithComponent("dispatch.worker"),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the poll loops and blocks until ctx is done or Stop is called
func (w *Worker) Start(ctx context.Context) {
	w.logger.WithField("concurrency", w.opts.Concurrency).Info("Starting retrain worker")

	for i := 0; i < w.opts.Concurrency; i++ {
		w.wg.Add(1)
		go func(slot int) {
			defer w.wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	w.wg.Wait()

	w.logger.Info("Retrain worker stopped")
}

// Stop asks every poll loop to exit after its current job
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) loop(ctx context.Context, slot int) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			for {
				processed, err := w.RunOnce(ctx)
				if err != nil {
					w.logger.WithError(err).WithField("slot", slot).Error("Failed to process retrain job")
					break
				}
				if !processed || w.stopping(ctx) {
					break
				}
			}
		}
	}
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// RunOnce claims and runs a single job. Returns false when the queue is empty.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.metrics.Jobs.WithLabelValues(string(contracts.JobRunning)).Inc()
	publish(ctx, w.publisher, job.Event(w.now()), w.logger.Zerolog())

	return true, w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job *contracts.Job) error {
	log := w.logger.WithJob(job.ID, string(job.Mode)).WithField("pairs", len(job.Pairs))
	log.Info("Retrain job started")

	runCtx := ctx
	if w.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.opts.JobTimeout)
		defer cancel()
	}

	opts := contracts.RunOptions{Actor: job.Actor, Note: jobNote(job), Now: w.now()}

	var (
		report *contracts.BatchReport
		err    error
	)
	switch job.Mode {
	case contracts.ModeFull:
		report, err = w.runner.RunFull(runCtx, opts)
	case contracts.ModeSelective:
		report, err = w.runner.RunSelective(runCtx, job.Pairs, opts)
	default:
		err = fmt.Errorf("unknown run mode %q", job.Mode)
	}

	// The state change must land even if the run context expired
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("job exceeded %s: %s", w.opts.JobTimeout, reason)
		}
		return w.fail(finishCtx, job, reason, log)
	}

	warnings := skipWarnings(report)
	if err := w.queue.Complete(finishCtx, job.ID, report.BatchID, warnings); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}

	job.BatchID = &report.BatchID
	job.Warnings = append(job.Warnings, warnings...)
	if err := job.Transition(contracts.JobCompleted, w.now()); err != nil {
		return err
	}
	w.metrics.Jobs.WithLabelValues(string(contracts.JobCompleted)).Inc()
	publish(finishCtx, w.publisher, job.Event(w.now()), w.logger.Zerolog())

	log.WithFields(map[string]interface{}{
		"batch_id": report.BatchID,
		"trained":  report.Trained,
		"skipped":  len(report.Skipped),
		"rows":     report.RowsWritten,
	}).Info("Retrain job completed")
	return nil
}

func (w *Worker) fail(ctx context.Context, job *contracts.Job, reason string, log *logger.Logger) error {
	log.WithField("reason", reason).Error("Retrain job failed")

	if err := w.queue.Fail(ctx, job.ID, reason); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	job.Error = reason
	if err := job.Transition(contracts.JobFailed, w.now()); err != nil {
		return err
	}
	w.metrics.Jobs.WithLabelValues(string(contracts.JobFailed)).Inc()
	publish(ctx, w.publisher, job.Event(w.now()), w.logger.Zerolog())

	if w.notifier != nil {
		if err := w.notifier.JobFailed(ctx, job); err != nil {
			log.WithError(err).Warn("Failure notification not delivered")
		}
	}
	return nil
}

func jobNote(job *contracts.Job) string {
	if job.Note != "" {
		return fmt.Sprintf("%s (job %s)", job.Note, job.ID)
	}
	return fmt.Sprintf("job %s", job.ID)
}

func skipWarnings(report *contracts.BatchReport) []string {
	var out []string
	for _, s := range report.Skipped {
		out = append(out, fmt.Sprintf("%s: %s", s.Segment, s.Reason))
	}
	return out
}

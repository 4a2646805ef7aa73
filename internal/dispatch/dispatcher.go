// Package dispatch turns verification actions into retraining jobs and
// runs those jobs on background workers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/internal/metrics"
	"github.com/wonny/harvest/backend/pkg/redis"
)

// Applier writes record status changes into verified history
type Applier interface {
	Apply(ctx context.Context, ev contracts.VerificationEvent) (int, error)
}

// Publisher broadcasts job events
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v interface{}) error
}

// Dispatcher enqueues one retraining job per verification action
type Dispatcher struct {
	applier   Applier
	queue     contracts.JobQueue
	dedup     Dedup
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	log       zerolog.Logger
}

// NewDispatcher creates a dispatcher. publisher may be nil.
func NewDispatcher(applier Applier, queue contracts.JobQueue, dedup Dedup, publisher Publisher, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	if dedup == nil {
		dedup = NewLRUDedup(0, redis.TTLDaily)
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Dispatcher{
		applier:   applier,
		queue:     queue,
		dedup:     dedup,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		log:       log.With().Str("component", "dispatch").Logger(),
	}
}

// HandleVerification records the action's status changes and enqueues a
// selective retraining job for the pairs it touched. A repeated action id
// returns the job enqueued the first time.
func (d *Dispatcher) HandleVerification(ctx context.Context, ev contracts.VerificationEvent) (*contracts.DispatchResult, error) {
	jobID := uuid.New()

	if ev.ActionID != "" {
		existing, claimed, err := d.dedup.Claim(ctx, ev.ActionID, jobID.String())
		switch {
		case err != nil:
			d.log.Warn().Err(err).Str("action_id", ev.ActionID).Msg("dedup unavailable, dispatching without it")
		case !claimed:
			return d.duplicate(ctx, ev.ActionID, existing)
		}
	}

	if _, err := d.applier.Apply(ctx, ev); err != nil {
		d.release(ev.ActionID)
		d.metrics.Dispatches.WithLabelValues("none", "apply_failed").Inc()
		return nil, fmt.Errorf("apply verification %q: %w", ev.ActionID, err)
	}

	pairs := ev.Pairs()
	var warnings []string

	if len(pairs) > 0 {
		job := contracts.NewJob(contracts.ModeSelective, pairs, ev.ActionID, ev.Actor, "verification", d.now())
		job.ID = jobID
		err := d.enqueue(ctx, job)
		if err == nil {
			d.metrics.Dispatches.WithLabelValues(string(contracts.ModeSelective), "enqueued").Inc()
			return &contracts.DispatchResult{JobID: job.ID, Mode: job.Mode, Pairs: pairs}, nil
		}
		d.log.Error().Err(err).Str("action_id", ev.ActionID).Msg("selective enqueue failed, falling back to full run")
		warnings = append(warnings, "selective retraining could not be queued; a full run was queued instead")
	} else {
		warnings = append(warnings, "no segments could be derived from the action; a full run was queued instead")
	}

	full := contracts.NewJob(contracts.ModeFull, nil, ev.ActionID, ev.Actor, "verification fallback", d.now())
	full.ID = jobID
	full.Warnings = warnings
	if err := d.enqueue(ctx, full); err != nil {
		d.release(ev.ActionID)
		d.metrics.Dispatches.WithLabelValues(string(contracts.ModeFull), "failed").Inc()
		d.log.Error().Err(err).Str("action_id", ev.ActionID).Msg("full run enqueue failed")
		return &contracts.DispatchResult{
			Mode:     contracts.ModeFull,
			Warnings: append(warnings, "retraining could not be queued; forecasts are unchanged until the next scheduled run"),
		}, fmt.Errorf("%w: %v", contracts.ErrDispatchFailure, err)
	}

	d.metrics.Dispatches.WithLabelValues(string(contracts.ModeFull), "fallback").Inc()
	return &contracts.DispatchResult{JobID: full.ID, Mode: full.Mode, Warnings: warnings}, nil
}

// TriggerFull enqueues a manual full run
func (d *Dispatcher) TriggerFull(ctx context.Context, actor, note string) (*contracts.DispatchResult, error) {
	job := contracts.NewJob(contracts.ModeFull, nil, "", actor, note, d.now())
	if err := d.enqueue(ctx, job); err != nil {
		d.metrics.Dispatches.WithLabelValues(string(contracts.ModeFull), "failed").Inc()
		return nil, fmt.Errorf("%w: %v", contracts.ErrDispatchFailure, err)
	}
	d.metrics.Dispatches.WithLabelValues(string(contracts.ModeFull), "manual").Inc()
	return &contracts.DispatchResult{JobID: job.ID, Mode: job.Mode}, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, job *contracts.Job) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	d.metrics.Jobs.WithLabelValues(string(contracts.JobQueued)).Inc()

	d.log.Info().
		Str("job_id", job.ID.String()).
		Str("mode", string(job.Mode)).
		Int("pairs", len(job.Pairs)).
		Str("action_id", job.ActionID).
		Msg("retrain job queued")

	publish(ctx, d.publisher, job.Event(d.now()), d.log)
	return nil
}

func (d *Dispatcher) duplicate(ctx context.Context, actionID, existing string) (*contracts.DispatchResult, error) {
	id, err := uuid.Parse(existing)
	if err != nil {
		return nil, fmt.Errorf("dedup entry for %q is not a job id: %w", actionID, err)
	}
	d.metrics.Dispatches.WithLabelValues("none", "duplicate").Inc()

	res := &contracts.DispatchResult{JobID: id, Duplicate: true}
	job, err := d.queue.Get(ctx, id)
	switch {
	case err == nil:
		res.Mode = job.Mode
		res.Pairs = job.Pairs
		res.Warnings = job.Warnings
	case errors.Is(err, contracts.ErrJobNotFound):
		// pruned or enqueued by a replica that has not committed yet
	default:
		d.log.Warn().Err(err).Str("job_id", existing).Msg("lookup of deduplicated job failed")
	}
	return res, nil
}

func (d *Dispatcher) release(actionID string) {
	if actionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.dedup.Release(ctx, actionID); err != nil {
		d.log.Warn().Err(err).Str("action_id", actionID).Msg("release dedup claim failed")
	}
}

func publish(ctx context.Context, p Publisher, ev contracts.JobEvent, log zerolog.Logger) {
	if p == nil {
		return
	}
	if err := p.PublishJSON(ctx, redis.JobEventsChannel, ev); err != nil {
		log.Warn().Err(err).Str("job_id", ev.JobID.String()).Msg("publish job event failed")
	}
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// PGQueue stores retraining jobs in forecast.retrain_jobs
// ⭐ SSOT: job rows are written only through this type
type PGQueue struct {
	db *pgxpool.Pool
}

var _ contracts.JobQueue = (*PGQueue)(nil)

// NewPGQueue creates a queue
func NewPGQueue(db *pgxpool.Pool) *PGQueue {
	return &PGQueue{db: db}
}

const jobColumns = `id, COALESCE(action_id, ''), mode, pairs, status, COALESCE(actor, ''), COALESCE(note, ''),
	batch_id, warnings, COALESCE(error, ''), created_at, started_at, finished_at`

// Enqueue inserts a queued job
func (q *PGQueue) Enqueue(ctx context.Context, job *contracts.Job) error {
	pairs, err := json.Marshal(nonNilPairs(job.Pairs))
	if err != nil {
		return fmt.Errorf("marshal pairs: %w", err)
	}
	warnings, err := json.Marshal(nonNilStrings(job.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	query := `
		INSERT INTO forecast.retrain_jobs
			(id, action_id, mode, pairs, status, actor, note, warnings, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`

	_, err = q.db.Exec(ctx, query,
		job.ID, job.ActionID, job.Mode, pairs, contracts.JobQueued,
		job.Actor, job.Note, warnings, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue retrain job: %w", err)
	}
	return nil
}

// Claim moves the oldest queued job to running. Concurrent workers never
// claim the same row.
func (q *PGQueue) Claim(ctx context.Context) (*contracts.Job, error) {
	query := `
		UPDATE forecast.retrain_jobs
		SET status = 'running', started_at = NOW()
		WHERE id = (
			SELECT id FROM forecast.retrain_jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(q.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim retrain job: %w", err)
	}
	return job, nil
}

// Complete marks a running job completed
func (q *PGQueue) Complete(ctx context.Context, id uuid.UUID, batchID int64, warnings []string) error {
	data, err := json.Marshal(nonNilStrings(warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	query := `
		UPDATE forecast.retrain_jobs
		SET status = 'completed', batch_id = $2, warnings = warnings || $3::jsonb, finished_at = NOW()
		WHERE id = $1 AND status = 'running'`

	return q.finish(ctx, query, id, contracts.JobCompleted, batchID, data)
}

// Fail marks a running job failed. Failed jobs are not retried.
func (q *PGQueue) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE forecast.retrain_jobs
		SET status = 'failed', error = $2, finished_at = NOW()
		WHERE id = $1 AND status = 'running'`

	return q.finish(ctx, query, id, contracts.JobFailed, reason)
}

func (q *PGQueue) finish(ctx context.Context, query string, id uuid.UUID, to contracts.JobStatus, args ...interface{}) error {
	tag, err := q.db.Exec(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not running -> %s: %w", id, to, contracts.ErrInvalidTransition)
	}
	return nil
}

// Get returns one job
func (q *PGQueue) Get(ctx context.Context, id uuid.UUID) (*contracts.Job, error) {
	job, err := scanJob(q.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM forecast.retrain_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the newest jobs
func (q *PGQueue) List(ctx context.Context, limit int) ([]contracts.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := q.db.Query(ctx, `SELECT `+jobColumns+` FROM forecast.retrain_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []contracts.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Stats counts jobs per state over the last day
func (q *PGQueue) Stats(ctx context.Context) (*contracts.JobStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued') as queued,
			COUNT(*) FILTER (WHERE status = 'running') as running,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM forecast.retrain_jobs
		WHERE created_at > NOW() - INTERVAL '1 day'`

	var s contracts.JobStats
	if err := q.db.QueryRow(ctx, query).Scan(&s.Queued, &s.Running, &s.Completed, &s.Failed); err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// Prune deletes finished jobs older than the cutoff
func (q *PGQueue) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM forecast.retrain_jobs
		WHERE status IN ('completed', 'failed') AND finished_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*contracts.Job, error) {
	var (
		job      contracts.Job
		pairs    []byte
		warnings []byte
	)
	if err := row.Scan(
		&job.ID, &job.ActionID, &job.Mode, &pairs, &job.Status, &job.Actor, &job.Note,
		&job.BatchID, &warnings, &job.Error, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pairs, &job.Pairs); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	if err := json.Unmarshal(warnings, &job.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	return &job, nil
}

func nonNilPairs(p []contracts.SegmentPair) []contracts.SegmentPair {
	if p == nil {
		return []contracts.SegmentPair{}
	}
	return p
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

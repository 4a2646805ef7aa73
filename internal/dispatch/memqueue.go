package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// MemoryQueue is an in-process JobQueue for single-binary runs and tests
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*contracts.Job
	now  func() time.Time
}

var _ contracts.JobQueue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[uuid.UUID]*contracts.Job), now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *contracts.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already enqueued", job.ID)
	}
	cp := *job
	cp.Status = contracts.JobQueued
	q.jobs[job.ID] = &cp
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context) (*contracts.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *contracts.Job
	for _, j := range q.jobs {
		if j.Status != contracts.JobQueued {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	if err := oldest.Transition(contracts.JobRunning, q.now()); err != nil {
		return nil, err
	}
	cp := *oldest
	return &cp, nil
}

func (q *MemoryQueue) Complete(_ context.Context, id uuid.UUID, batchID int64, warnings []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return contracts.ErrJobNotFound
	}
	if err := j.Transition(contracts.JobCompleted, q.now()); err != nil {
		return err
	}
	j.BatchID = &batchID
	j.Warnings = append(j.Warnings, warnings...)
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, id uuid.UUID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return contracts.ErrJobNotFound
	}
	if err := j.Transition(contracts.JobFailed, q.now()); err != nil {
		return err
	}
	j.Error = reason
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, id uuid.UUID) (*contracts.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, contracts.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// List returns jobs newest first
func (q *MemoryQueue) List(_ context.Context, limit int) ([]contracts.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]contracts.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Stats(_ context.Context) (*contracts.JobStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s contracts.JobStats
	for _, j := range q.jobs {
		switch j.Status {
		case contracts.JobQueued:
			s.Queued++
		case contracts.JobRunning:
			s.Running++
		case contracts.JobCompleted:
			s.Completed++
		case contracts.JobFailed:
			s.Failed++
		}
	}
	return &s, nil
}

// Prune deletes finished jobs older than the cutoff
func (q *MemoryQueue) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for id, j := range q.jobs {
		if j.Status.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(olderThan) {
			delete(q.jobs, id)
			n++
		}
	}
	return n, nil
}

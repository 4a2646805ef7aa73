package contracts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunMode selects which segments a batch covers
type RunMode string

const (
	ModeFull      RunMode = "full"
	ModeSelective RunMode = "selective"
)

// JobStatus is the lifecycle state of a retraining job
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether s -> to is a legal state change
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobQueued:
		return to == JobRunning
	case JobRunning:
		return to == JobCompleted || to == JobFailed
	}
	return false
}

// Job is a queued retraining request
type Job struct {
	ID         uuid.UUID     `json:"id"`
	ActionID   string        `json:"action_id,omitempty"`
	Mode       RunMode       `json:"mode"`
	Pairs      []SegmentPair `json:"pairs,omitempty"`
	Status     JobStatus     `json:"status"`
	Actor      string        `json:"actor,omitempty"`
	Note       string        `json:"note,omitempty"`
	BatchID    *int64        `json:"batch_id,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// NewJob builds a queued job
func NewJob(mode RunMode, pairs []SegmentPair, actionID, actor, note string, now time.Time) *Job {
	return &Job{
		ID:        uuid.New(),
		ActionID:  actionID,
		Mode:      mode,
		Pairs:     pairs,
		Status:    JobQueued,
		Actor:     actor,
		Note:      note,
		CreatedAt: now,
	}
}

// Transition moves the job to a new state, stamping timestamps
func (j *Job) Transition(to JobStatus, now time.Time) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("job %s: %s -> %s: %w", j.ID, j.Status, to, ErrInvalidTransition)
	}
	j.Status = to
	switch to {
	case JobRunning:
		j.StartedAt = &now
	case JobCompleted, JobFailed:
		j.FinishedAt = &now
	}
	return nil
}

// JobEvent is published whenever a job changes state
type JobEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   JobStatus `json:"status"`
	Mode     RunMode   `json:"mode"`
	Actor    string    `json:"actor,omitempty"`
	BatchID  *int64    `json:"batch_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
	At       time.Time `json:"at"`
}

// Event snapshots the job for publication
func (j *Job) Event(at time.Time) JobEvent {
	return JobEvent{
		JobID:    j.ID,
		Status:   j.Status,
		Mode:     j.Mode,
		Actor:    j.Actor,
		BatchID:  j.BatchID,
		Error:    j.Error,
		Warnings: j.Warnings,
		At:       at,
	}
}

// JobStats counts jobs per state
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// DispatchResult is returned to the caller of a verification action
type DispatchResult struct {
	ActionID  string        `json:"action_id,omitempty"`
	JobID     uuid.UUID     `json:"job_id"`
	Mode      RunMode       `json:"mode"`
	Pairs     []SegmentPair `json:"pairs,omitempty"`
	Duplicate bool          `json:"duplicate"`
	Warnings  []string      `json:"warnings,omitempty"`
}

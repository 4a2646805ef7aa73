package contracts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInsufficientHistory means the segment has fewer distinct months than required
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrNoModelAvailable means no artifact exists for the segment
	ErrNoModelAvailable = errors.New("no model available")
	// ErrTrainingFailure means the forecaster could not fit the series
	ErrTrainingFailure = errors.New("training failure")
	// ErrDispatchFailure means neither a selective nor a full job could be enqueued
	ErrDispatchFailure = errors.New("dispatch failure")
	// ErrJobNotFound means the job id is unknown
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition means a job state change is not allowed
	ErrInvalidTransition = errors.New("invalid job transition")
)

// TrainingError carries the segment and the underlying fit error
type TrainingError struct {
	Key SegmentKey
	Err error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s: %v", e.Key, e.Err)
}

func (e *TrainingError) Unwrap() []error {
	return []error{ErrTrainingFailure, e.Err}
}

// Skip reasons reported per segment
const (
	ReasonInsufficientHistory = "insufficient_history"
	ReasonNoModel             = "no_model"
	ReasonTrainingFailure     = "training_failure"
	ReasonStoreError          = "store_error"
	ReasonCanceled            = "canceled"
)

// SkipReason classifies a segment error
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		return ReasonInsufficientHistory
	case errors.Is(err, ErrNoModelAvailable):
		return ReasonNoModel
	case errors.Is(err, ErrTrainingFailure):
		return ReasonTrainingFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonStoreError
	}
}

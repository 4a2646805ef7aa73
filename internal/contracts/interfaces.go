package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Forecaster fits a series and predicts arbitrary dates from the fitted artifact
// ⭐ SSOT: the statistical model is reachable only through this interface
type Forecaster interface {
	Fit(series Series) ([]byte, error)
	Predict(artifact []byte, dates []time.Time) ([]float64, error)
}

// ModelStore persists one artifact per segment.
// Load returns ErrNoModelAvailable when nothing was saved.
type ModelStore interface {
	Save(ctx context.Context, key SegmentKey, artifact []byte) error
	Load(ctx context.Context, key SegmentKey) ([]byte, error)
}

// ObservationReader reads verified monthly history
type ObservationReader interface {
	MonthlyByMunicipality(ctx context.Context, commodityID, municipalityID int64, floor *time.Time) ([]Observation, error)
	MonthlyPooled(ctx context.Context, commodityID int64, floor *time.Time) ([]Observation, error)
}

// ObservationWriter maintains the derived verified observations
type ObservationWriter interface {
	UpsertObservation(ctx context.Context, obs VerifiedObservation) error
	DeleteObservation(ctx context.Context, recordKind string, recordID int64) error
}

// Catalog lists commodities and municipalities
type Catalog interface {
	Commodities(ctx context.Context) ([]Commodity, error)
	Municipalities(ctx context.Context) ([]MunicipalityInfo, error)
}

// ResultStore versions forecast rows into batches
type ResultStore interface {
	CreateBatch(ctx context.Context, mode RunMode, note, actor string) (*ForecastBatch, error)
	UpsertResults(ctx context.Context, rows []ForecastResult) error
}

// JobQueue persists retraining jobs
// ⭐ SSOT: the only channel between the API and the workers
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error
	Claim(ctx context.Context) (*Job, error) // nil, nil when empty
	Complete(ctx context.Context, id uuid.UUID, batchID int64, warnings []string) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Stats(ctx context.Context) (*JobStats, error)
}

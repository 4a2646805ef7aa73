package forecast

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// Trainer fits one segment and persists its artifact
type Trainer struct {
	forecaster contracts.Forecaster
	store      contracts.ModelStore
	minMonths  int
	log        zerolog.Logger
}

// NewTrainer creates a trainer
func NewTrainer(forecaster contracts.Forecaster, store contracts.ModelStore, minMonths int, log zerolog.Logger) *Trainer {
	if minMonths < contracts.DefaultMinHistoryMonths {
		minMonths = contracts.DefaultMinHistoryMonths
	}
	return &Trainer{
		forecaster: forecaster,
		store:      store,
		minMonths:  minMonths,
		log:        log.With().Str("component", "forecast.trainer").Logger(),
	}
}

// MinMonths returns the history threshold in effect
func (t *Trainer) MinMonths() int {
	return t.minMonths
}

// Train fits the series and overwrites the segment's artifact.
// On any error the previous artifact is left untouched.
func (t *Trainer) Train(ctx context.Context, key contracts.SegmentKey, series contracts.Series) error {
	series.Key = key
	if err := series.Trainable(t.minMonths); err != nil {
		return err
	}
	if err := series.Validate(); err != nil {
		return &contracts.TrainingError{Key: key, Err: err}
	}

	artifact, err := t.forecaster.Fit(series)
	if err != nil {
		return &contracts.TrainingError{Key: key, Err: err}
	}

	if err := t.store.Save(ctx, key, artifact); err != nil {
		return fmt.Errorf("save model %s: %w", key, err)
	}

	t.log.Debug().
		Int64("commodity_id", key.CommodityID).
		Str("segment", key.String()).
		Int("months", series.Len()).
		Int("artifact_bytes", len(artifact)).
		Msg("segment trained")

	return nil
}

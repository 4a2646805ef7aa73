package verification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// ObservationRepository maintains forecast.verified_observations
type ObservationRepository struct {
	pool *pgxpool.Pool
}

var _ contracts.ObservationWriter = (*ObservationRepository)(nil)

// NewObservationRepository creates a repository
func NewObservationRepository(pool *pgxpool.Pool) *ObservationRepository {
	return &ObservationRepository{pool: pool}
}

// UpsertObservation records or corrects a verified record's kilograms
func (r *ObservationRepository) UpsertObservation(ctx context.Context, obs contracts.VerifiedObservation) error {
	query := `
		INSERT INTO forecast.verified_observations
			(record_kind, record_id, commodity_id, municipality_id, observed_on, weight_kg, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (record_kind, record_id)
		DO UPDATE SET
			commodity_id = EXCLUDED.commodity_id,
			municipality_id = EXCLUDED.municipality_id,
			observed_on = EXCLUDED.observed_on,
			weight_kg = EXCLUDED.weight_kg,
			verified_at = EXCLUDED.verified_at`

	_, err := r.pool.Exec(ctx, query,
		obs.RecordKind, obs.RecordID, obs.CommodityID, obs.MunicipalityID,
		obs.ObservedOn, obs.WeightKG,
	)
	if err != nil {
		return fmt.Errorf("upsert observation %s/%d: %w", obs.RecordKind, obs.RecordID, err)
	}
	return nil
}

// DeleteObservation removes a record that left the verified state. Missing rows are not an error.
func (r *ObservationRepository) DeleteObservation(ctx context.Context, recordKind string, recordID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM forecast.verified_observations WHERE record_kind = $1 AND record_id = $2`,
		recordKind, recordID)
	if err != nil {
		return fmt.Errorf("delete observation %s/%d: %w", recordKind, recordID, err)
	}
	return nil
}

package verification

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/database"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(pool.Close)

	require.NoError(t, (&database.DB{Pool: pool}).Migrate(ctx))
	return pool
}

func TestObservationRepository_UpsertAndDelete(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewObservationRepository(pool)

	var commodityID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO forecast.commodities (name) VALUES ($1) RETURNING id`,
		"Papaya-"+uuid.NewString()).Scan(&commodityID)
	require.NoError(t, err)

	municipalityID := 200000 + time.Now().UnixNano()%1000000000
	_, err = pool.Exec(ctx, `INSERT INTO forecast.municipalities (id, name) VALUES ($1, 'Abucay')`, municipalityID)
	require.NoError(t, err)

	recordID := time.Now().UnixNano()
	obs := contracts.VerifiedObservation{
		RecordKind:     "harvest",
		RecordID:       recordID,
		CommodityID:    commodityID,
		MunicipalityID: municipalityID,
		ObservedOn:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		WeightKG:       120,
	}
	require.NoError(t, repo.UpsertObservation(ctx, obs))

	// Correction of the same record replaces it
	obs.WeightKG = 150
	require.NoError(t, repo.UpsertObservation(ctx, obs))

	var n int
	var kg float64
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(weight_kg), 0)::float8
		FROM forecast.verified_observations
		WHERE record_kind = 'harvest' AND record_id = $1`, recordID).Scan(&n, &kg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 150, kg, 1e-9)

	require.NoError(t, repo.DeleteObservation(ctx, "harvest", recordID))
	require.NoError(t, repo.DeleteObservation(ctx, "harvest", recordID), "deleting a missing row is not an error")

	err = pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM forecast.verified_observations
		WHERE record_kind = 'harvest' AND record_id = $1`, recordID).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCatalogRepository_Lists(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	catalog := NewCatalogRepository(pool, nil)

	name := "Mango-" + uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO forecast.commodities (name, average_weight_per_unit) VALUES ($1, 0.3)`, name)
	require.NoError(t, err)

	commodities, err := catalog.Commodities(ctx)
	require.NoError(t, err)

	var found *contracts.Commodity
	for i := range commodities {
		if commodities[i].Name == name {
			found = &commodities[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.AverageWeightPerUnit)
	assert.InDelta(t, 0.3, *found.AverageWeightPerUnit, 1e-9)

	_, err = catalog.Municipalities(ctx)
	require.NoError(t, err)
}

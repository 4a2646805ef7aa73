package dispatch

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

	// Other tests' leftovers must not be claimed here
	_, err = pool.Exec(ctx, `UPDATE forecast.retrain_jobs SET status = 'failed', error = 'test cleanup' WHERE status = 'queued'`)
	require.NoError(t, err)
	return pool
}

func TestPGQueue_Lifecycle(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	q := NewPGQueue(pool)

	pairs := []contracts.SegmentPair{{CommodityID: 1, MunicipalityID: 7}}
	job := contracts.NewJob(contracts.ModeSelective, pairs, "action-"+uuid.NewString(), "clerk", "", time.Now())
	job.Warnings = []string{"queued by test"}
	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, contracts.JobRunning, claimed.Status)
	assert.Equal(t, pairs, claimed.Pairs)
	assert.NotNil(t, claimed.StartedAt)

	next, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "nothing left to claim")

	require.NoError(t, q.Complete(ctx, job.ID, 42, []string{"Papaya/Abucay: insufficient_history"}))

	done, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobCompleted, done.Status)
	require.NotNil(t, done.BatchID)
	assert.Equal(t, int64(42), *done.BatchID)
	assert.Equal(t, []string{"queued by test", "Papaya/Abucay: insufficient_history"}, done.Warnings)

	err = q.Fail(ctx, job.ID, "too late")
	assert.ErrorIs(t, err, contracts.ErrInvalidTransition)

	_, err = q.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, contracts.ErrJobNotFound)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Completed, 1)

	pruned, err := q.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pruned, int64(1))
}

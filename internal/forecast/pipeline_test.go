package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/harvest/backend/internal/contracts"
)

const (
	mango = int64(1)
	pilar = int64(7)
)

func newPipeline(t *testing.T) (*Trainer, *Generator, *memStore) {
	t.Helper()
	store := newMemStore()
	f := NewRidgeForecaster(DefaultRidgeOptions())
	return NewTrainer(f, store, 2, zerolog.Nop()), NewGenerator(f, store, zerolog.Nop()), store
}

func TestAggregator_SeriesDispatch(t *testing.T) {
	reader := &fakeReader{byMunicipality: map[contracts.SegmentPair][]contracts.Observation{
		{CommodityID: mango, MunicipalityID: pilar}: {
			{Month: month(2024, 2), KG: 150},
			{Month: month(2024, 1), KG: 60},
			{Month: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), KG: 40},
		},
		{CommodityID: mango, MunicipalityID: 3}: {
			{Month: month(2024, 1), KG: 10},
			{Month: month(2024, 4), KG: 5},
		},
	}}
	agg := NewAggregator(reader, zerolog.Nop())
	ctx := context.Background()

	pilarSeries, err := agg.Series(ctx, contracts.RealSegment(mango, pilar), nil)
	require.NoError(t, err)
	require.Equal(t, 2, pilarSeries.Len())
	assert.Equal(t, month(2024, 1), pilarSeries.First())
	assert.Equal(t, 100.0, pilarSeries.Points[0].KG)
	assert.Equal(t, 150.0, pilarSeries.Points[1].KG)

	overall, err := agg.Series(ctx, contracts.OverallSegment(mango), nil)
	require.NoError(t, err)
	require.Equal(t, 3, overall.Len(), "gap months are not filled")
	assert.Equal(t, 110.0, overall.Points[0].KG)
	assert.Equal(t, month(2024, 4), overall.Last())
	assert.True(t, overall.Key.IsOverall())
}

func TestAggregator_Floor(t *testing.T) {
	reader := &fakeReader{byMunicipality: map[contracts.SegmentPair][]contracts.Observation{
		{CommodityID: mango, MunicipalityID: pilar}: {
			{Month: month(2020, 1), KG: 1},
			{Month: month(2024, 1), KG: 2},
		},
	}}
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, NewAggregator(reader, zerolog.Nop()).Floor(now))

	agg := NewAggregatorWithFloor(reader, 12, zerolog.Nop())
	floor := agg.Floor(now)
	require.NotNil(t, floor)
	assert.Equal(t, month(2023, 6), *floor)

	s, err := agg.History(context.Background(), mango, pilar, floor)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestAggregator_ReaderError(t *testing.T) {
	agg := NewAggregator(&fakeReader{err: errors.New("connection refused")}, zerolog.Nop())

	_, err := agg.Overall(context.Background(), mango, nil)
	assert.ErrorContains(t, err, "connection refused")
}

func TestTrainer_MinimumHistory(t *testing.T) {
	trainer, _, store := newPipeline(t)
	ctx := context.Background()
	key := contracts.RealSegment(mango, pilar)

	err := trainer.Train(ctx, key, series(key, month(2024, 1), 100))
	assert.ErrorIs(t, err, contracts.ErrInsufficientHistory)
	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, contracts.ErrNoModelAvailable, "no artifact after a rejected train")

	require.NoError(t, trainer.Train(ctx, key, series(key, month(2024, 1), 100, 150)))
	_, err = store.Load(ctx, key)
	assert.NoError(t, err)
}

func TestTrainer_RejectsUnorderedSeries(t *testing.T) {
	trainer, _, _ := newPipeline(t)
	key := contracts.RealSegment(mango, pilar)

	s := contracts.Series{Points: []contracts.Observation{
		{Month: month(2024, 2), KG: 1},
		{Month: month(2024, 1), KG: 2},
	}}

	err := trainer.Train(context.Background(), key, s)
	assert.ErrorIs(t, err, contracts.ErrTrainingFailure)

	var te *contracts.TrainingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, key, te.Key)
}

func TestTrainer_FitFailureKeepsPreviousArtifact(t *testing.T) {
	store := newMemStore()
	key := contracts.RealSegment(mango, pilar)
	require.NoError(t, store.Save(context.Background(), key, []byte("previous")))

	trainer := NewTrainer(failingForecaster{}, store, 2, zerolog.Nop())
	err := trainer.Train(context.Background(), key, series(key, month(2024, 1), 1, 2, 3))
	assert.ErrorIs(t, err, contracts.ErrTrainingFailure)
	assert.ErrorContains(t, err, "singular")

	a, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("previous"), a)
}

func TestGenerator_NoModel(t *testing.T) {
	_, gen, _ := newPipeline(t)
	key := contracts.RealSegment(mango, pilar)

	_, err := gen.Generate(context.Background(), key, series(key, month(2024, 1), 100, 150), 12, time.Now())
	assert.ErrorIs(t, err, contracts.ErrNoModelAvailable)
}

func TestGenerator_MangoPilarTwoMonths(t *testing.T) {
	trainer, gen, _ := newPipeline(t)
	ctx := context.Background()
	key := contracts.RealSegment(mango, pilar)
	s := series(key, month(2024, 1), 100, 150)
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, trainer.Train(ctx, key, s))
	out, err := gen.Generate(ctx, key, s, 12, now)
	require.NoError(t, err)

	require.Len(t, out.Future, 12)
	assert.Equal(t, "Mar 2024", out.Future[0].Label)
	assert.Equal(t, 3, out.Future[0].Month)
	assert.Equal(t, 2024, out.Future[0].Year)
	assert.Equal(t, "Feb 2025", out.Future[11].Label)
	for _, p := range out.Future {
		assert.GreaterOrEqual(t, p.Value, 0.0)
	}

	// Grid starts at the first observation because it is newer than last-12
	require.Len(t, out.Labels, 14)
	assert.Equal(t, "Jan 2024", out.Labels[0])
	require.NotNil(t, out.HistoryValues[1])
	assert.Equal(t, 150.0, *out.HistoryValues[1])
	assert.Nil(t, out.ForecastValues[1])
	require.NotNil(t, out.BacktestValues[0])
	require.NotNil(t, out.BacktestValues[1])
	assert.GreaterOrEqual(t, *out.BacktestValues[1], 0.0)
	assert.Nil(t, out.HistoryValues[2])
	assert.Nil(t, out.BacktestValues[2])
	require.NotNil(t, out.ForecastValues[2])
	assert.Equal(t, out.Future[0].Value, *out.ForecastValues[2])
	assert.Equal(t, now, out.GeneratedAt)
}

func TestGenerator_ClipsNegativePredictions(t *testing.T) {
	trainer, gen, _ := newPipeline(t)
	ctx := context.Background()
	key := contracts.OverallSegment(mango)

	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(1200 - 100*i)
	}
	s := series(key, month(2023, 1), values...)

	require.NoError(t, trainer.Train(ctx, key, s))
	out, err := gen.Generate(ctx, key, s, 12, time.Now())
	require.NoError(t, err)

	zeros := 0
	for _, p := range out.Future {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		if p.Value == 0 {
			zeros++
		}
	}
	assert.Greater(t, zeros, 0, "a steep decline should reach the zero floor")
}

func TestGenerator_LookbackWindow(t *testing.T) {
	trainer, gen, _ := newPipeline(t)
	ctx := context.Background()
	key := contracts.RealSegment(mango, pilar)

	values := make([]float64, 30)
	for i := range values {
		values[i] = 100
	}
	s := series(key, month(2022, 1), values...)

	require.NoError(t, trainer.Train(ctx, key, s))
	out, err := gen.Generate(ctx, key, s, 6, time.Now())
	require.NoError(t, err)

	// last = Jun 2024, grid = Jun 2023 .. Dec 2024
	assert.Equal(t, "Jun 2023", out.Labels[0])
	assert.Len(t, out.Labels, 13+6)
	assert.Len(t, out.Future, 6)
}

func TestGenerator_BacktestOverlay(t *testing.T) {
	trainer, gen, _ := newPipeline(t)
	ctx := context.Background()
	key := contracts.OverallSegment(mango)

	values := make([]float64, 18)
	for i := range values {
		values[i] = float64(200 + 10*(i%12))
	}
	s := series(key, month(2023, 1), values...)

	require.NoError(t, trainer.Train(ctx, key, s))
	out, err := gen.Generate(ctx, key, s, 12, time.Now())
	require.NoError(t, err)

	// last = Jun 2024, grid = Jun 2023 .. Jun 2025
	require.Len(t, out.Labels, 25)
	require.Len(t, out.BacktestValues, 25)
	backtest := 0
	for i := range out.Labels {
		if i <= 12 {
			require.NotNil(t, out.BacktestValues[i], out.Labels[i])
			assert.GreaterOrEqual(t, *out.BacktestValues[i], 0.0)
			assert.Equal(t, Round2(*out.BacktestValues[i]), *out.BacktestValues[i])
			assert.Nil(t, out.ForecastValues[i])
			backtest++
			continue
		}
		assert.Nil(t, out.BacktestValues[i], out.Labels[i])
		assert.NotNil(t, out.ForecastValues[i], out.Labels[i])
	}
	assert.Equal(t, 13, backtest)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.24, Round2(1.235))
	assert.Equal(t, 0.0, Round2(0.004))
	assert.Equal(t, 150.0, Round2(149.999))
}

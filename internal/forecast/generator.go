package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// LabelLayout formats chart labels, e.g. "Mar 2024"
const LabelLayout = "Jan 2006"

// lookbackMonths bounds how much history the chart grid shows
const lookbackMonths = 12

// Generator predicts a segment's horizon from its stored artifact
type Generator struct {
	forecaster contracts.Forecaster
	store      contracts.ModelStore
	log        zerolog.Logger
}

// NewGenerator creates a generator
func NewGenerator(forecaster contracts.Forecaster, store contracts.ModelStore, log zerolog.Logger) *Generator {
	return &Generator{
		forecaster: forecaster,
		store:      store,
		log:        log.With().Str("component", "forecast.generator").Logger(),
	}
}

// Generate loads the artifact and predicts from max(last-12, first) through last+horizon.
// Every prediction is clipped to >= 0. Points up to the last observed month are the
// backtest overlay; points after it are Future.
func (g *Generator) Generate(ctx context.Context, key contracts.SegmentKey, series contracts.Series, horizon int, now time.Time) (*contracts.SegmentForecast, error) {
	if series.Len() == 0 {
		return nil, fmt.Errorf("generate %s: empty series: %w", key, contracts.ErrInsufficientHistory)
	}
	if horizon < 1 {
		return nil, fmt.Errorf("generate %s: horizon must be positive, got %d", key, horizon)
	}

	artifact, err := g.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", key, err)
	}

	last := series.Last()
	start := contracts.AddMonths(last, -lookbackMonths)
	if first := series.First(); start.Before(first) {
		start = first
	}
	end := contracts.AddMonths(last, horizon)

	var grid []time.Time
	for m := start; !m.After(end); m = contracts.AddMonths(m, 1) {
		grid = append(grid, m)
	}

	preds, err := g.forecaster.Predict(artifact, grid)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", key, err)
	}
	if len(preds) != len(grid) {
		return nil, fmt.Errorf("predict %s: got %d values for %d dates", key, len(preds), len(grid))
	}

	observed := make(map[time.Time]float64, series.Len())
	for _, p := range series.Points {
		observed[p.Month] = p.KG
	}

	out := &contracts.SegmentForecast{
		Key:            key,
		Labels:         make([]string, len(grid)),
		HistoryValues:  make([]*float64, len(grid)),
		BacktestValues: make([]*float64, len(grid)),
		ForecastValues: make([]*float64, len(grid)),
		Future:         make([]contracts.FuturePoint, 0, horizon),
		GeneratedAt:    now,
	}

	for i, m := range grid {
		out.Labels[i] = m.Format(LabelLayout)
		value := Round2(math.Max(0, preds[i]))

		if !m.After(last) {
			if kg, ok := observed[m]; ok {
				v := Round2(kg)
				out.HistoryValues[i] = &v
			}
			out.BacktestValues[i] = &value
			continue
		}

		out.ForecastValues[i] = &value
		out.Future = append(out.Future, contracts.FuturePoint{
			Label: out.Labels[i],
			Date:  m,
			Month: int(m.Month()),
			Year:  m.Year(),
			Value: value,
		})
	}

	return out, nil
}

// Round2 rounds half away from zero to two decimal places
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

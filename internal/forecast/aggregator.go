package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// Aggregator turns verified observations into monthly segment series
type Aggregator struct {
	reader      contracts.ObservationReader
	floorMonths int
	log         zerolog.Logger
}

// NewAggregator creates an aggregator reading all history
func NewAggregator(reader contracts.ObservationReader, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		reader: reader,
		log:    log.With().Str("component", "forecast.aggregator").Logger(),
	}
}

// NewAggregatorWithFloor limits history to the last floorMonths months (0 = all)
func NewAggregatorWithFloor(reader contracts.ObservationReader, floorMonths int, log zerolog.Logger) *Aggregator {
	a := NewAggregator(reader, log)
	a.floorMonths = floorMonths
	return a
}

// Floor returns the earliest month to read relative to now, or nil for all history
func (a *Aggregator) Floor(now time.Time) *time.Time {
	if a.floorMonths <= 0 {
		return nil
	}
	f := contracts.AddMonths(contracts.MonthStart(now), -a.floorMonths)
	return &f
}

// History returns one real municipality's monthly series
func (a *Aggregator) History(ctx context.Context, commodityID, municipalityID int64, floor *time.Time) (contracts.Series, error) {
	key := contracts.RealSegment(commodityID, municipalityID)
	obs, err := a.reader.MonthlyByMunicipality(ctx, commodityID, municipalityID, floor)
	if err != nil {
		return contracts.Series{Key: key}, fmt.Errorf("aggregate %s: %w", key, err)
	}
	return a.build(key, obs), nil
}

// Overall returns the commodity's series pooled over every real municipality
func (a *Aggregator) Overall(ctx context.Context, commodityID int64, floor *time.Time) (contracts.Series, error) {
	key := contracts.OverallSegment(commodityID)
	obs, err := a.reader.MonthlyPooled(ctx, commodityID, floor)
	if err != nil {
		return contracts.Series{Key: key}, fmt.Errorf("aggregate %s: %w", key, err)
	}
	return a.build(key, obs), nil
}

// Series dispatches on the municipality variant
func (a *Aggregator) Series(ctx context.Context, key contracts.SegmentKey, floor *time.Time) (contracts.Series, error) {
	switch m := key.Municipality.(type) {
	case contracts.RealMunicipality:
		return a.History(ctx, key.CommodityID, m.ID, floor)
	case contracts.OverallAggregate:
		return a.Overall(ctx, key.CommodityID, floor)
	default:
		return contracts.Series{Key: key}, fmt.Errorf("unknown municipality variant %T", key.Municipality)
	}
}

// build normalises months, merges duplicates and sorts ascending. Gaps stay gaps.
func (a *Aggregator) build(key contracts.SegmentKey, obs []contracts.Observation) contracts.Series {
	byMonth := make(map[time.Time]float64, len(obs))
	for _, o := range obs {
		byMonth[contracts.MonthStart(o.Month)] += o.KG
	}

	points := make([]contracts.Observation, 0, len(byMonth))
	for m, kg := range byMonth {
		points = append(points, contracts.Observation{Month: m, KG: kg})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Month.Before(points[j].Month) })

	a.log.Debug().
		Str("segment", key.String()).
		Int("months", len(points)).
		Msg("series aggregated")

	return contracts.Series{Key: key, Points: points}
}

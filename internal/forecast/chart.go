package forecast

import (
	"context"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// SeriesSource is the aggregator surface the chart service reads
type SeriesSource interface {
	Series(ctx context.Context, key contracts.SegmentKey, floor *time.Time) (contracts.Series, error)
	Floor(now time.Time) *time.Time
}

// ChartService renders a segment's stored model against its current
// history. It never trains.
type ChartService struct {
	source    SeriesSource
	generator *Generator
	segments  contracts.Segments
	horizon   int
}

// NewChartService creates a chart service
func NewChartService(source SeriesSource, generator *Generator, overallID int64, horizon int) *ChartService {
	if horizon < 1 {
		horizon = 12
	}
	return &ChartService{
		source:    source,
		generator: generator,
		segments:  contracts.Segments{OverallID: overallID},
		horizon:   horizon,
	}
}

// Chart returns ErrNoModelAvailable when the segment was never trained
func (c *ChartService) Chart(ctx context.Context, commodityID, municipalityID int64, now time.Time) (*contracts.SegmentForecast, error) {
	key := c.segments.Key(commodityID, municipalityID)
	series, err := c.source.Series(ctx, key, c.source.Floor(now))
	if err != nil {
		return nil, err
	}
	return c.generator.Generate(ctx, key, series, c.horizon, now)
}

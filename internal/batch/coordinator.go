// Package batch runs the segmented forecast pipeline and versions its
// output into forecast batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/internal/metrics"
)

// ErrEmptySelection means a selective run resolved to no segments
var ErrEmptySelection = errors.New("no segments selected")

// SeriesSource aggregates a segment's verified history
type SeriesSource interface {
	Series(ctx context.Context, key contracts.SegmentKey, floor *time.Time) (contracts.Series, error)
	Floor(now time.Time) *time.Time
}

// SegmentTrainer fits and persists one segment
type SegmentTrainer interface {
	Train(ctx context.Context, key contracts.SegmentKey, series contracts.Series) error
}

// SegmentGenerator predicts one segment from its persisted model
type SegmentGenerator interface {
	Generate(ctx context.Context, key contracts.SegmentKey, series contracts.Series, horizon int, now time.Time) (*contracts.SegmentForecast, error)
}

// Config holds coordinator settings
type Config struct {
	HorizonMonths      int
	MinHistoryMonths   int
	OverallID          int64
	NotListedCommodity string
	Concurrency        int
}

// Coordinator drives full and selective runs
type Coordinator struct {
	source    SeriesSource
	trainer   SegmentTrainer
	generator SegmentGenerator
	results   contracts.ResultStore
	catalog   contracts.Catalog
	cfg       Config
	segments  contracts.Segments
	metrics   *metrics.Metrics
	hooks     []func(ctx context.Context, report *contracts.BatchReport)
	log       zerolog.Logger
}

// NewCoordinator creates a coordinator
func NewCoordinator(
	source SeriesSource,
	trainer SegmentTrainer,
	generator SegmentGenerator,
	results contracts.ResultStore,
	catalog contracts.Catalog,
	cfg Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Coordinator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.HorizonMonths < 1 {
		cfg.HorizonMonths = 12
	}
	if cfg.MinHistoryMonths < contracts.DefaultMinHistoryMonths {
		cfg.MinHistoryMonths = contracts.DefaultMinHistoryMonths
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Coordinator{
		source:    source,
		trainer:   trainer,
		generator: generator,
		results:   results,
		catalog:   catalog,
		cfg:       cfg,
		segments:  contracts.Segments{OverallID: cfg.OverallID},
		metrics:   m,
		log:       log.With().Str("component", "batch.coordinator").Logger(),
	}
}

// OnBatchCommitted registers a callback run after every batch finishes
func (c *Coordinator) OnBatchCommitted(fn func(ctx context.Context, report *contracts.BatchReport)) {
	c.hooks = append(c.hooks, fn)
}

// RunFull forecasts every listed commodity in every real municipality,
// plus each commodity's Overall segment, into one new batch
func (c *Coordinator) RunFull(ctx context.Context, opts contracts.RunOptions) (*contracts.BatchReport, error) {
	commodities, err := c.catalog.Commodities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list commodities: %w", err)
	}
	municipalities, err := c.catalog.Municipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}

	weights := make(map[int64]*float64, len(commodities))
	var keys []contracts.SegmentKey
	for _, com := range commodities {
		if com.Name == c.cfg.NotListedCommodity {
			continue
		}
		weights[com.ID] = com.AverageWeightPerUnit
		for _, mun := range municipalities {
			if mun.ID == c.cfg.OverallID {
				continue
			}
			keys = append(keys, contracts.RealSegment(com.ID, mun.ID))
		}
		keys = append(keys, contracts.OverallSegment(com.ID))
	}

	return c.run(ctx, contracts.ModeFull, keys, weights, opts)
}

// RunSelective forecasts the named segments plus the Overall segment of every
// commodity they touch. Pairs naming the sentinel id collapse into Overall.
func (c *Coordinator) RunSelective(ctx context.Context, pairs []contracts.SegmentPair, opts contracts.RunOptions) (*contracts.BatchReport, error) {
	commodities, err := c.catalog.Commodities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list commodities: %w", err)
	}
	municipalities, err := c.catalog.Municipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}

	known := make(map[int64]contracts.Commodity, len(commodities))
	for _, com := range commodities {
		known[com.ID] = com
	}
	knownMun := make(map[int64]bool, len(municipalities))
	for _, mun := range municipalities {
		knownMun[mun.ID] = true
	}

	weights := make(map[int64]*float64)
	seen := make(map[contracts.SegmentKey]bool)
	var keys, overall []contracts.SegmentKey
	for _, p := range pairs {
		com, ok := known[p.CommodityID]
		if !ok {
			c.log.Warn().Int64("commodity_id", p.CommodityID).Msg("unknown commodity dropped from selective run")
			continue
		}
		weights[com.ID] = com.AverageWeightPerUnit

		key := c.segments.Key(p.CommodityID, p.MunicipalityID)
		if !key.IsOverall() && !knownMun[p.MunicipalityID] {
			c.log.Warn().
				Int64("commodity_id", p.CommodityID).
				Int64("municipality_id", p.MunicipalityID).
				Msg("unknown municipality dropped from selective run")
			key = contracts.OverallSegment(p.CommodityID)
		}
		if !key.IsOverall() && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}

		ov := contracts.OverallSegment(p.CommodityID)
		if !seen[ov] {
			seen[ov] = true
			overall = append(overall, ov)
		}
	}

	keys = append(keys, overall...)
	if len(keys) == 0 {
		return nil, ErrEmptySelection
	}

	return c.run(ctx, contracts.ModeSelective, keys, weights, opts)
}

type outcome struct {
	key  contracts.SegmentKey
	rows int
	err  error
}

func (c *Coordinator) run(ctx context.Context, mode contracts.RunMode, keys []contracts.SegmentKey, weights map[int64]*float64, opts contracts.RunOptions) (*contracts.BatchReport, error) {
	start := time.Now()
	now := opts.Now
	if now.IsZero() {
		now = start
	}

	batch, err := c.results.CreateBatch(ctx, mode, opts.Note, opts.Actor)
	if err != nil {
		return nil, err
	}

	log := c.log.With().Int64("batch_id", batch.ID).Str("mode", string(mode)).Logger()
	log.Info().Int("segments", len(keys)).Str("actor", opts.Actor).Msg("batch started")

	floor := c.source.Floor(now)
	outcomes := make([]outcome, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	var mu sync.Mutex
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rows, err := c.runSegment(gctx, batch.ID, key, floor, weights[key.CommodityID], now)
			mu.Lock()
			outcomes[i] = outcome{key: key, rows: rows, err: err}
			mu.Unlock()
			// A failed segment never cancels its siblings
			return nil
		})
	}
	_ = g.Wait()

	report := &contracts.BatchReport{
		BatchID:  batch.ID,
		Mode:     mode,
		Segments: len(keys),
	}
	for _, o := range outcomes {
		if o.err == nil {
			report.Trained++
			report.RowsWritten += o.rows
			continue
		}

		reason := contracts.SkipReason(o.err)
		municipalityID := c.segments.ID(o.key)
		report.Skipped = append(report.Skipped, contracts.SkippedSegment{
			CommodityID:    o.key.CommodityID,
			MunicipalityID: municipalityID,
			Segment:        o.key.String(),
			Reason:         reason,
			Detail:         o.err.Error(),
		})
		c.metrics.SegmentsSkipped.WithLabelValues(reason).Inc()

		event := log.Warn()
		if reason == contracts.ReasonInsufficientHistory || reason == contracts.ReasonNoModel {
			event = log.Info()
		}
		event.
			Int64("commodity_id", o.key.CommodityID).
			Int64("municipality_id", municipalityID).
			Str("segment", o.key.String()).
			Str("reason", reason).
			Err(o.err).
			Msg("segment skipped")
	}
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].Segment < report.Skipped[j].Segment })

	report.Duration = time.Since(start)
	c.metrics.SegmentsTrained.Add(float64(report.Trained))
	c.metrics.RowsWritten.Add(float64(report.RowsWritten))
	c.metrics.BatchDuration.WithLabelValues(string(mode)).Observe(report.Duration.Seconds())

	log.Info().
		Int("trained", report.Trained).
		Int("skipped", len(report.Skipped)).
		Int("rows", report.RowsWritten).
		Dur("duration", report.Duration).
		Msg("batch completed")

	for _, hook := range c.hooks {
		hook(ctx, report)
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch %d interrupted: %w", batch.ID, err)
	}
	return report, nil
}

// runSegment aggregates, trains, generates and upserts one segment, in that order
func (c *Coordinator) runSegment(ctx context.Context, batchID int64, key contracts.SegmentKey, floor *time.Time, weightPerUnit *float64, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	series, err := c.source.Series(ctx, key, floor)
	if err != nil {
		return 0, err
	}
	if err := series.Trainable(c.cfg.MinHistoryMonths); err != nil {
		return 0, err
	}
	if err := c.trainer.Train(ctx, key, series); err != nil {
		return 0, err
	}

	fc, err := c.generator.Generate(ctx, key, series, c.cfg.HorizonMonths, now)
	if err != nil {
		return 0, err
	}

	municipalityID := c.segments.ID(key)
	note := fmt.Sprintf("trained on %d months through %s", series.Len(), series.Last().Format("Jan 2006"))
	rows := make([]contracts.ForecastResult, 0, len(fc.Future))
	for _, p := range fc.Future {
		rows = append(rows, contracts.ForecastResult{
			BatchID:        batchID,
			CommodityID:    key.CommodityID,
			MunicipalityID: municipalityID,
			Month:          p.Month,
			Year:           p.Year,
			PredictedKG:    p.Value,
			PredictedUnits: UnitCount(p.Value, weightPerUnit),
			Notes:          note,
		})
	}

	if err := c.results.UpsertResults(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// UnitCount derives a unit count from kilograms. Nil when the average
// weight per unit is unknown or not positive.
func UnitCount(kg float64, weightPerUnit *float64) *float64 {
	if weightPerUnit == nil || *weightPerUnit <= 0 {
		return nil
	}
	units := decimal.NewFromFloat(kg).
		Div(decimal.NewFromFloat(*weightPerUnit)).
		Round(2).
		InexactFloat64()
	return &units
}

package contracts

import "time"

// ForecastBatch groups the rows written by one pipeline run
type ForecastBatch struct {
	ID          int64     `json:"id"`
	Mode        RunMode   `json:"mode"`
	ScopeNote   string    `json:"scope_note,omitempty"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RowCount    int       `json:"row_count"`
}

// ForecastResult is one predicted month for one segment within a batch
type ForecastResult struct {
	BatchID        int64    `json:"batch_id"`
	CommodityID    int64    `json:"commodity_id"`
	MunicipalityID int64    `json:"municipality_id"`
	Month          int      `json:"forecast_month"`
	Year           int      `json:"forecast_year"`
	PredictedKG    float64  `json:"predicted_kg"`
	PredictedUnits *float64 `json:"predicted_units"`
	Notes          string   `json:"notes,omitempty"`
}

// CurrentForecast is the non-shadowed row for a combination, joined with names
type CurrentForecast struct {
	ForecastResult
	CommodityName    string    `json:"commodity_name"`
	MunicipalityName string    `json:"municipality_name"`
	BatchCreatedAt   time.Time `json:"batch_created_at"`
}

// CurrentQuery filters the current forecast view. Zero values mean unbounded.
type CurrentQuery struct {
	CommodityID    int64
	MunicipalityID int64
	From           time.Time // month start, inclusive
	To             time.Time // month start, inclusive
	Limit          int
}

// FuturePoint is one predicted month past the last observation
type FuturePoint struct {
	Label string    `json:"label"`
	Date  time.Time `json:"date"`
	Month int       `json:"month"`
	Year  int       `json:"year"`
	Value float64   `json:"value"`
}

// SegmentForecast is the chart-ready output of the generator.
// HistoryValues, BacktestValues and ForecastValues are aligned to Labels with nil gaps.
// BacktestValues covers grid dates up to the last observed month, ForecastValues the rest.
type SegmentForecast struct {
	Key            SegmentKey    `json:"-"`
	Labels         []string      `json:"labels"`
	HistoryValues  []*float64    `json:"history_values"`
	BacktestValues []*float64    `json:"backtest_values"`
	ForecastValues []*float64    `json:"forecast_values"`
	Future         []FuturePoint `json:"future"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// RunOptions carries the explicit context of a batch run
type RunOptions struct {
	Actor string
	Note  string
	Now   time.Time
}

// SkippedSegment records why a segment produced no rows
type SkippedSegment struct {
	CommodityID    int64  `json:"commodity_id"`
	MunicipalityID int64  `json:"municipality_id"`
	Segment        string `json:"segment"`
	Reason         string `json:"reason"`
	Detail         string `json:"detail,omitempty"`
}

// BatchReport summarises a batch run
type BatchReport struct {
	BatchID     int64            `json:"batch_id"`
	Mode        RunMode          `json:"mode"`
	Segments    int              `json:"segments"`
	Trained     int              `json:"trained"`
	RowsWritten int              `json:"rows_written"`
	Skipped     []SkippedSegment `json:"skipped,omitempty"`
	Duration    time.Duration    `json:"duration"`
}

// Commodity is a catalog entry
type Commodity struct {
	ID                   int64    `json:"id"`
	Name                 string   `json:"name"`
	AverageWeightPerUnit *float64 `json:"average_weight_per_unit"`
}

// Municipality catalog entry
type MunicipalityInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

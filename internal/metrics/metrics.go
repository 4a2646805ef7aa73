package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the pipeline
type Metrics struct {
	SegmentsTrained prometheus.Counter
	SegmentsSkipped *prometheus.CounterVec // reason
	RowsWritten     prometheus.Counter
	BatchDuration   *prometheus.HistogramVec // mode
	Jobs            *prometheus.CounterVec   // status
	Dispatches      *prometheus.CounterVec   // mode, outcome
}

// New creates and registers all metrics on reg (nil = default registry)
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SegmentsTrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvest_segments_trained_total",
			Help: "Segments trained and forecast successfully",
		}),
		SegmentsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_segments_skipped_total",
			Help: "Segments that produced no forecast rows, by reason",
		}, []string{"reason"}),
		RowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvest_forecast_rows_written_total",
			Help: "Forecast result rows upserted",
		}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_batch_duration_seconds",
			Help:    "Wall time of a forecast batch run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"mode"}),
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_retrain_jobs_total",
			Help: "Retraining job state transitions",
		}, []string{"status"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_dispatches_total",
			Help: "Verification dispatch outcomes",
		}, []string{"mode", "outcome"}),
	}
}

// Nop returns metrics registered on a throwaway registry
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

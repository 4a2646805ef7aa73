package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
)

var errQueueDown = errors.New("queue unavailable")

// flakyQueue fails Enqueue for the listed modes
type flakyQueue struct {
	*MemoryQueue
	failModes map[contracts.RunMode]bool
}

func (q *flakyQueue) Enqueue(ctx context.Context, job *contracts.Job) error {
	if q.failModes[job.Mode] {
		return errQueueDown
	}
	return q.MemoryQueue.Enqueue(ctx, job)
}

type countingApplier struct {
	calls int
	err   error
}

func (a *countingApplier) Apply(_ context.Context, ev contracts.VerificationEvent) (int, error) {
	a.calls++
	if a.err != nil {
		return 0, a.err
	}
	return len(ev.Changes), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []contracts.JobEvent
}

func (p *recordingPublisher) PublishJSON(_ context.Context, _ string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := v.(contracts.JobEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *recordingPublisher) statuses() []contracts.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]contracts.JobStatus, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

// memHistory is the verified-observation table, readable as monthly totals
type memHistory struct {
	mu   sync.Mutex
	rows map[int64]contracts.VerifiedObservation
}

func newMemHistory() *memHistory {
	return &memHistory{rows: make(map[int64]contracts.VerifiedObservation)}
}

func (h *memHistory) UpsertObservation(_ context.Context, obs contracts.VerifiedObservation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[obs.RecordID] = obs
	return nil
}

func (h *memHistory) DeleteObservation(_ context.Context, _ string, recordID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rows, recordID)
	return nil
}

func (h *memHistory) MonthlyByMunicipality(_ context.Context, commodityID, municipalityID int64, _ *time.Time) ([]contracts.Observation, error) {
	return h.monthly(func(o contracts.VerifiedObservation) bool {
		return o.CommodityID == commodityID && o.MunicipalityID == municipalityID
	}), nil
}

func (h *memHistory) MonthlyPooled(_ context.Context, commodityID int64, _ *time.Time) ([]contracts.Observation, error) {
	return h.monthly(func(o contracts.VerifiedObservation) bool {
		return o.CommodityID == commodityID
	}), nil
}

func (h *memHistory) monthly(match func(contracts.VerifiedObservation) bool) []contracts.Observation {
	h.mu.Lock()
	defer h.mu.Unlock()
	totals := make(map[time.Time]float64)
	for _, o := range h.rows {
		if match(o) {
			totals[contracts.MonthStart(o.ObservedOn)] += o.WeightKG
		}
	}
	out := make([]contracts.Observation, 0, len(totals))
	for m, kg := range totals {
		out = append(out, contracts.Observation{Month: m, KG: kg})
	}
	return out
}

type memResults struct {
	mu     sync.Mutex
	nextID int64
	rows   []contracts.ForecastResult
}

func (r *memResults) CreateBatch(_ context.Context, mode contracts.RunMode, note, actor string) (*contracts.ForecastBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return &contracts.ForecastBatch{ID: r.nextID, Mode: mode, ScopeNote: note, TriggeredBy: actor, CreatedAt: time.Unix(r.nextID, 0)}, nil
}

func (r *memResults) UpsertResults(_ context.Context, rows []contracts.ForecastResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

// segments lists the (commodity, municipality) pairs written in a batch
func (r *memResults) segments(batchID int64) map[contracts.SegmentPair]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[contracts.SegmentPair]int)
	for _, row := range r.rows {
		if row.BatchID == batchID {
			out[contracts.SegmentPair{CommodityID: row.CommodityID, MunicipalityID: row.MunicipalityID}]++
		}
	}
	return out
}

type staticCatalog struct {
	commodities    []contracts.Commodity
	municipalities []contracts.MunicipalityInfo
}

func (c staticCatalog) Commodities(context.Context) ([]contracts.Commodity, error) {
	return c.commodities, nil
}

func (c staticCatalog) Municipalities(context.Context) ([]contracts.MunicipalityInfo, error) {
	return c.municipalities, nil
}

// stubRunner returns a canned report or blocks until its context ends
type stubRunner struct {
	report *contracts.BatchReport
	err    error
	block  bool
	pairs  []contracts.SegmentPair
}

func (r *stubRunner) RunFull(ctx context.Context, _ contracts.RunOptions) (*contracts.BatchReport, error) {
	return r.result(ctx)
}

func (r *stubRunner) RunSelective(ctx context.Context, pairs []contracts.SegmentPair, _ contracts.RunOptions) (*contracts.BatchReport, error) {
	r.pairs = pairs
	return r.result(ctx)
}

func (r *stubRunner) result(ctx context.Context) (*contracts.BatchReport, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.report, r.err
}

type recordingNotifier struct {
	failed []*contracts.Job
}

func (n *recordingNotifier) JobFailed(_ context.Context, job *contracts.Job) error {
	n.failed = append(n.failed, job)
	return nil
}

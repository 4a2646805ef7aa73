package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
)

type resultKey struct {
	batchID, commodityID, municipalityID int64
	month, year                          int
}

type memResults struct {
	mu        sync.Mutex
	nextID    int64
	batches   []contracts.ForecastBatch
	rows      map[resultKey]contracts.ForecastResult
	upserts   int
	failBatch error
}

func newMemResults() *memResults {
	return &memResults{rows: make(map[resultKey]contracts.ForecastResult)}
}

func (r *memResults) CreateBatch(_ context.Context, mode contracts.RunMode, note, actor string) (*contracts.ForecastBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBatch != nil {
		return nil, r.failBatch
	}
	r.nextID++
	b := contracts.ForecastBatch{
		ID:          r.nextID,
		Mode:        mode,
		ScopeNote:   note,
		TriggeredBy: actor,
		CreatedAt:   time.Unix(r.nextID, 0),
	}
	r.batches = append(r.batches, b)
	return &b, nil
}

func (r *memResults) UpsertResults(_ context.Context, rows []contracts.ForecastResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.rows[resultKey{row.BatchID, row.CommodityID, row.MunicipalityID, row.Month, row.Year}] = row
		r.upserts++
	}
	return nil
}

func (r *memResults) batchRows(batchID int64) []contracts.ForecastResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []contracts.ForecastResult
	for k, row := range r.rows {
		if k.batchID == batchID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CommodityID != b.CommodityID {
			return a.CommodityID < b.CommodityID
		}
		if a.MunicipalityID != b.MunicipalityID {
			return a.MunicipalityID < b.MunicipalityID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
	return out
}

// current mirrors the DISTINCT ON query: newest batch per combination wins
func (r *memResults) current() map[resultKey]contracts.ForecastResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[resultKey]contracts.ForecastResult)
	for k, row := range r.rows {
		combo := resultKey{0, k.commodityID, k.municipalityID, k.month, k.year}
		if prev, ok := out[combo]; !ok || row.BatchID > prev.BatchID {
			out[combo] = row
		}
	}
	return out
}

type memCatalog struct {
	commodities    []contracts.Commodity
	municipalities []contracts.MunicipalityInfo
}

func (c *memCatalog) Commodities(context.Context) ([]contracts.Commodity, error) {
	return c.commodities, nil
}

func (c *memCatalog) Municipalities(context.Context) ([]contracts.MunicipalityInfo, error) {
	return c.municipalities, nil
}

// memObservations is a mutable verified-history table
type memObservations struct {
	mu   sync.Mutex
	data map[contracts.SegmentPair]map[time.Time]float64
	err  map[int64]error
}

func newMemObservations() *memObservations {
	return &memObservations{data: make(map[contracts.SegmentPair]map[time.Time]float64), err: make(map[int64]error)}
}

func (o *memObservations) add(commodityID, municipalityID int64, month time.Time, kg float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := contracts.SegmentPair{CommodityID: commodityID, MunicipalityID: municipalityID}
	if o.data[p] == nil {
		o.data[p] = make(map[time.Time]float64)
	}
	o.data[p][month] += kg
}

func (o *memObservations) remove(commodityID, municipalityID int64, month time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data[contracts.SegmentPair{CommodityID: commodityID, MunicipalityID: municipalityID}], month)
}

func (o *memObservations) MonthlyByMunicipality(_ context.Context, commodityID, municipalityID int64, _ *time.Time) ([]contracts.Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.err[commodityID]; err != nil {
		return nil, err
	}
	var out []contracts.Observation
	for m, kg := range o.data[contracts.SegmentPair{CommodityID: commodityID, MunicipalityID: municipalityID}] {
		out = append(out, contracts.Observation{Month: m, KG: kg})
	}
	return out, nil
}

func (o *memObservations) MonthlyPooled(_ context.Context, commodityID int64, _ *time.Time) ([]contracts.Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.err[commodityID]; err != nil {
		return nil, err
	}
	var out []contracts.Observation
	for p, months := range o.data {
		if p.CommodityID != commodityID {
			continue
		}
		for m, kg := range months {
			out = append(out, contracts.Observation{Month: m, KG: kg})
		}
	}
	return out, nil
}

var errStore = errors.New("disk full")

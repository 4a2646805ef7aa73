package forecast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
)

type memStore struct {
	mu     sync.Mutex
	models map[contracts.SegmentKey][]byte
	saves  int
}

func newMemStore() *memStore {
	return &memStore{models: make(map[contracts.SegmentKey][]byte)}
}

func (s *memStore) Save(_ context.Context, key contracts.SegmentKey, artifact []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[key] = append([]byte(nil), artifact...)
	s.saves++
	return nil
}

func (s *memStore) Load(_ context.Context, key contracts.SegmentKey) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.models[key]
	if !ok {
		return nil, contracts.ErrNoModelAvailable
	}
	return a, nil
}

type fakeReader struct {
	byMunicipality map[contracts.SegmentPair][]contracts.Observation
	err            error
}

func (r *fakeReader) MonthlyByMunicipality(_ context.Context, commodityID, municipalityID int64, floor *time.Time) ([]contracts.Observation, error) {
	if r.err != nil {
		return nil, r.err
	}
	return filterFloor(r.byMunicipality[contracts.SegmentPair{CommodityID: commodityID, MunicipalityID: municipalityID}], floor), nil
}

func (r *fakeReader) MonthlyPooled(_ context.Context, commodityID int64, floor *time.Time) ([]contracts.Observation, error) {
	if r.err != nil {
		return nil, r.err
	}
	var all []contracts.Observation
	for pair, obs := range r.byMunicipality {
		if pair.CommodityID == commodityID {
			all = append(all, obs...)
		}
	}
	return filterFloor(all, floor), nil
}

func filterFloor(obs []contracts.Observation, floor *time.Time) []contracts.Observation {
	if floor == nil {
		return obs
	}
	var out []contracts.Observation
	for _, o := range obs {
		if !o.Month.Before(*floor) {
			out = append(out, o)
		}
	}
	return out
}

type failingForecaster struct{}

func (failingForecaster) Fit(contracts.Series) ([]byte, error) {
	return nil, errors.New("matrix is singular")
}

func (failingForecaster) Predict([]byte, []time.Time) ([]float64, error) {
	return nil, errors.New("no model")
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func series(key contracts.SegmentKey, start time.Time, values ...float64) contracts.Series {
	s := contracts.Series{Key: key}
	for i, v := range values {
		s.Points = append(s.Points, contracts.Observation{Month: contracts.AddMonths(start, i), KG: v})
	}
	return s
}

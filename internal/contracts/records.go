package contracts

import (
	"fmt"
	"time"
)

// RecordStatus is the verification state of a harvest record
type RecordStatus string

const (
	StatusPending  RecordStatus = "pending"
	StatusVerified RecordStatus = "verified"
	StatusRejected RecordStatus = "rejected"
)

// Valid reports whether s is a known status
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// WeightUnit is the unit a record was submitted in
type WeightUnit string

const (
	UnitKilogram WeightUnit = "kg"
	UnitGram     WeightUnit = "g"
	UnitTon      WeightUnit = "ton"
	UnitPound    WeightUnit = "lb"
)

var kilogramsPer = map[WeightUnit]float64{
	UnitKilogram: 1,
	UnitGram:     0.001,
	UnitTon:      1000,
	UnitPound:    0.453592,
}

// ToKilograms converts v into kilograms. An empty unit means kg.
func (u WeightUnit) ToKilograms(v float64) (float64, error) {
	if u == "" {
		u = UnitKilogram
	}
	factor, ok := kilogramsPer[u]
	if !ok {
		return 0, fmt.Errorf("unknown weight unit %q", u)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative weight %v", v)
	}
	return v * factor, nil
}

// RecordChange is one record's status transition inside a user action
type RecordChange struct {
	RecordKind     string       `json:"record_kind"` // harvest, transaction
	RecordID       int64        `json:"record_id"`
	CommodityID    int64        `json:"commodity_id"`
	MunicipalityID int64        `json:"municipality_id"`
	From           RecordStatus `json:"from"`
	To             RecordStatus `json:"to"`
	ObservedOn     time.Time    `json:"observed_on"`
	Weight         float64      `json:"weight"`
	Unit           WeightUnit   `json:"unit"`
}

// EntersVerified reports an approval
func (c RecordChange) EntersVerified() bool {
	return c.To == StatusVerified && c.From != StatusVerified
}

// LeavesVerified reports a verified record being reverted or rejected
func (c RecordChange) LeavesVerified() bool {
	return c.From == StatusVerified && c.To != StatusVerified
}

// AffectsHistory reports whether the change alters verified history
func (c RecordChange) AffectsHistory() bool {
	return c.EntersVerified() || c.LeavesVerified()
}

// Validate checks the fields needed to apply the change
func (c RecordChange) Validate() error {
	if !c.From.Valid() || !c.To.Valid() {
		return fmt.Errorf("record %s/%d: invalid status transition %q -> %q", c.RecordKind, c.RecordID, c.From, c.To)
	}
	if c.RecordKind == "" {
		return fmt.Errorf("record %d: record_kind is required", c.RecordID)
	}
	if c.EntersVerified() && c.ObservedOn.IsZero() {
		return fmt.Errorf("record %s/%d: observed_on is required for approval", c.RecordKind, c.RecordID)
	}
	return nil
}

// VerificationEvent groups every record change from a single user action
type VerificationEvent struct {
	ActionID string         `json:"action_id"`
	Actor    string         `json:"actor"`
	Changes  []RecordChange `json:"changes"`
}

// Pairs returns the distinct (commodity, municipality) pairs touched by
// history-affecting changes, in first-seen order
func (e VerificationEvent) Pairs() []SegmentPair {
	seen := make(map[SegmentPair]bool)
	var pairs []SegmentPair
	for _, c := range e.Changes {
		if !c.AffectsHistory() || c.CommodityID <= 0 || c.MunicipalityID <= 0 {
			continue
		}
		p := SegmentPair{CommodityID: c.CommodityID, MunicipalityID: c.MunicipalityID}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}
	return pairs
}

// VerifiedObservation is the derived row the aggregators read
type VerifiedObservation struct {
	RecordKind     string
	RecordID       int64
	CommodityID    int64
	MunicipalityID int64
	ObservedOn     time.Time
	WeightKG       float64
}

// Package verification keeps the verified-observation table in step with
// record status changes and exposes the commodity and municipality catalog.
package verification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// Recorder applies record status changes to verified history
type Recorder struct {
	writer contracts.ObservationWriter
	log    zerolog.Logger
}

// NewRecorder creates a recorder
func NewRecorder(writer contracts.ObservationWriter, log zerolog.Logger) *Recorder {
	return &Recorder{
		writer: writer,
		log:    log.With().Str("component", "verification.recorder").Logger(),
	}
}

// Apply upserts approvals and deletes reversals. Changes that do not cross
// the verified boundary are ignored. Returns how many rows were touched.
func (r *Recorder) Apply(ctx context.Context, ev contracts.VerificationEvent) (int, error) {
	for _, c := range ev.Changes {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}

	applied := 0
	for _, c := range ev.Changes {
		switch {
		case c.EntersVerified():
			kg, err := c.Unit.ToKilograms(c.Weight)
			if err != nil {
				return applied, fmt.Errorf("record %s/%d: %w", c.RecordKind, c.RecordID, err)
			}
			if err := r.writer.UpsertObservation(ctx, contracts.VerifiedObservation{
				RecordKind:     c.RecordKind,
				RecordID:       c.RecordID,
				CommodityID:    c.CommodityID,
				MunicipalityID: c.MunicipalityID,
				ObservedOn:     c.ObservedOn,
				WeightKG:       kg,
			}); err != nil {
				return applied, err
			}
		case c.LeavesVerified():
			if err := r.writer.DeleteObservation(ctx, c.RecordKind, c.RecordID); err != nil {
				return applied, err
			}
		default:
			continue
		}
		applied++
	}

	r.log.Debug().
		Str("action_id", ev.ActionID).
		Int("changes", len(ev.Changes)).
		Int("applied", applied).
		Msg("verification applied")

	return applied, nil
}

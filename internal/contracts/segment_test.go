package contracts

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMunicipalityRoundTrip(t *testing.T) {
	const overall = 14

	tests := []struct {
		name    string
		id      int64
		overall bool
	}{
		{"real municipality", 3, false},
		{"sentinel decodes to overall", overall, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MunicipalityFromID(tt.id, overall)
			_, isOverall := m.(OverallAggregate)
			if isOverall != tt.overall {
				t.Errorf("MunicipalityFromID(%d) overall = %v, want %v", tt.id, isOverall, tt.overall)
			}
			if got := MunicipalityID(m, overall); got != tt.id {
				t.Errorf("MunicipalityID() = %d, want %d", got, tt.id)
			}
		})
	}
}

func TestSegmentKeyAsMapKey(t *testing.T) {
	seen := map[SegmentKey]int{}
	seen[RealSegment(1, 2)]++
	seen[RealSegment(1, 2)]++
	seen[OverallSegment(1)]++
	seen[Segments{OverallID: 14}.Key(1, 14)]++

	if seen[RealSegment(1, 2)] != 2 {
		t.Errorf("expected real key counted twice, got %d", seen[RealSegment(1, 2)])
	}
	if seen[OverallSegment(1)] != 2 {
		t.Errorf("expected overall key counted twice, got %d", seen[OverallSegment(1)])
	}
	if !OverallSegment(1).IsOverall() || RealSegment(1, 2).IsOverall() {
		t.Error("IsOverall misclassified a key")
	}
}

func TestSeriesTrainable(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	one := Series{Key: RealSegment(1, 2), Points: []Observation{{Month: jan, KG: 100}}}
	two := Series{Key: RealSegment(1, 2), Points: []Observation{{Month: jan, KG: 100}, {Month: AddMonths(jan, 1), KG: 150}}}

	if err := one.Trainable(2); !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("one month: expected ErrInsufficientHistory, got %v", err)
	}
	if err := two.Trainable(2); err != nil {
		t.Errorf("two months: expected trainable, got %v", err)
	}
	// Floors below two are raised
	if err := one.Trainable(1); !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("min=1: expected ErrInsufficientHistory, got %v", err)
	}
}

func TestSeriesValidate(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		points  []Observation
		wantErr bool
	}{
		{"ascending", []Observation{{Month: jan}, {Month: AddMonths(jan, 2)}}, false},
		{"duplicate month", []Observation{{Month: jan}, {Month: jan}}, true},
		{"descending", []Observation{{Month: AddMonths(jan, 1)}, {Month: jan}}, true},
		{"mid-month", []Observation{{Month: jan.AddDate(0, 0, 3)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Series{Points: tt.points}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMonthHelpers(t *testing.T) {
	mid := time.Date(2024, 11, 17, 13, 5, 0, 0, time.FixedZone("PHT", 8*3600))
	start := MonthStart(mid)
	if !start.Equal(time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("MonthStart() = %v", start)
	}
	if got := AddMonths(start, 3); !got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("AddMonths() = %v", got)
	}
	if got := MonthsBetween(start, AddMonths(start, -14)); got != -14 {
		t.Errorf("MonthsBetween() = %d, want -14", got)
	}
}

func TestWeightUnitToKilograms(t *testing.T) {
	tests := []struct {
		unit    WeightUnit
		in      float64
		want    float64
		wantErr bool
	}{
		{"", 5, 5, false},
		{UnitKilogram, 5, 5, false},
		{UnitGram, 2500, 2.5, false},
		{UnitTon, 1.5, 1500, false},
		{UnitPound, 10, 4.53592, false},
		{"sack", 1, 0, true},
		{UnitKilogram, -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.unit, tt.in), func(t *testing.T) {
			got, err := tt.unit.ToKilograms(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToKilograms() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ToKilograms() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerificationEventPairs(t *testing.T) {
	ev := VerificationEvent{
		ActionID: "a1",
		Changes: []RecordChange{
			{RecordKind: "harvest", RecordID: 1, CommodityID: 5, MunicipalityID: 7, From: StatusPending, To: StatusVerified},
			{RecordKind: "harvest", RecordID: 2, CommodityID: 5, MunicipalityID: 7, From: StatusPending, To: StatusVerified},
			{RecordKind: "harvest", RecordID: 3, CommodityID: 6, MunicipalityID: 2, From: StatusVerified, To: StatusRejected},
			{RecordKind: "harvest", RecordID: 4, CommodityID: 9, MunicipalityID: 9, From: StatusPending, To: StatusRejected},
		},
	}

	pairs := ev.Pairs()
	want := []SegmentPair{{CommodityID: 5, MunicipalityID: 7}, {CommodityID: 6, MunicipalityID: 2}}
	if len(pairs) != len(want) {
		t.Fatalf("Pairs() = %v, want %v", pairs, want)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("Pairs()[%d] = %v, want %v", i, pairs[i], want[i])
		}
	}
}

func TestRecordChangeValidate(t *testing.T) {
	ok := RecordChange{RecordKind: "harvest", RecordID: 1, From: StatusPending, To: StatusVerified, ObservedOn: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	noDate := ok
	noDate.ObservedOn = time.Time{}
	if err := noDate.Validate(); err == nil {
		t.Error("expected error for approval without observed_on")
	}

	badStatus := ok
	badStatus.To = "approved"
	if err := badStatus.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestJobTransitions(t *testing.T) {
	now := time.Now()
	job := NewJob(ModeSelective, []SegmentPair{{CommodityID: 1, MunicipalityID: 2}}, "a1", "alice", "", now)

	if err := job.Transition(JobCompleted, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("queued -> completed: expected ErrInvalidTransition, got %v", err)
	}
	if err := job.Transition(JobRunning, now); err != nil {
		t.Fatalf("queued -> running: %v", err)
	}
	if job.StartedAt == nil {
		t.Error("expected StartedAt to be stamped")
	}
	if err := job.Transition(JobFailed, now); err != nil {
		t.Fatalf("running -> failed: %v", err)
	}
	if !job.Status.Terminal() || job.FinishedAt == nil {
		t.Error("expected terminal failed job with FinishedAt")
	}
	if err := job.Transition(JobRunning, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed -> running: expected ErrInvalidTransition, got %v", err)
	}
}

func TestSkipReason(t *testing.T) {
	key := RealSegment(1, 2)

	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", ErrInsufficientHistory), ReasonInsufficientHistory},
		{ErrNoModelAvailable, ReasonNoModel},
		{&TrainingError{Key: key, Err: errors.New("singular matrix")}, ReasonTrainingFailure},
		{errors.New("connection reset"), ReasonStoreError},
	}

	for _, tt := range tests {
		if got := SkipReason(tt.err); got != tt.want {
			t.Errorf("SkipReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

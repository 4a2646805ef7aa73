package contracts

import (
	"fmt"
	"time"
)

// DefaultMinHistoryMonths is the smallest series a segment trains on
const DefaultMinHistoryMonths = 2

// Observation is one month of summed verified harvest weight
type Observation struct {
	Month time.Time `json:"month"` // first day of the month, UTC
	KG    float64   `json:"kg"`
}

// Series is a segment's monthly history in ascending month order.
// Months without records are absent, not zero.
type Series struct {
	Key    SegmentKey    `json:"-"`
	Points []Observation `json:"points"`
}

// Len returns the number of distinct months
func (s Series) Len() int {
	return len(s.Points)
}

// First returns the earliest month
func (s Series) First() time.Time {
	return s.Points[0].Month
}

// Last returns the latest observed month
func (s Series) Last() time.Time {
	return s.Points[len(s.Points)-1].Month
}

// Trainable reports ErrInsufficientHistory when fewer than min months exist
func (s Series) Trainable(min int) error {
	if min < DefaultMinHistoryMonths {
		min = DefaultMinHistoryMonths
	}
	if len(s.Points) < min {
		return fmt.Errorf("%s has %d month(s), need %d: %w", s.Key, len(s.Points), min, ErrInsufficientHistory)
	}
	return nil
}

// Validate checks that months are normalised and strictly increasing
func (s Series) Validate() error {
	for i, p := range s.Points {
		if !p.Month.Equal(MonthStart(p.Month)) {
			return fmt.Errorf("point %d (%s) is not a month start", i, p.Month.Format("2006-01-02"))
		}
		if i > 0 && !p.Month.After(s.Points[i-1].Month) {
			return fmt.Errorf("point %d (%s) does not follow %s", i,
				p.Month.Format("2006-01"), s.Points[i-1].Month.Format("2006-01"))
		}
	}
	return nil
}

// MonthStart truncates t to the first instant of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a month start by n calendar months
func AddMonths(month time.Time, n int) time.Time {
	return time.Date(month.Year(), month.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween counts whole calendar months from a to b
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

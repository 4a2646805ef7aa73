package modelconfig

import (
	"fmt"
	"math"
)

// maxHarmonics is the number of distinct month-of-year frequencies
const maxHarmonics = 6

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	if cfg.Meta.ModelID == "" {
		return ValidationError{"meta.model_id", "required"}
	}

	if cfg.Ridge.Harmonics < 0 || cfg.Ridge.Harmonics > maxHarmonics {
		return ValidationError{"ridge.harmonics", fmt.Sprintf("must be in [0, %d]", maxHarmonics)}
	}
	if err := validateLambda(cfg.Ridge.TrendLambda); err != nil {
		return ValidationError{"ridge.trend_lambda", err.Error()}
	}
	if err := validateLambda(cfg.Ridge.SeasonalLambda); err != nil {
		return ValidationError{"ridge.seasonal_lambda", err.Error()}
	}

	return nil
}

func validateLambda(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("must be finite")
	}
	if v < 0 {
		return fmt.Errorf("must be >= 0")
	}
	return nil
}

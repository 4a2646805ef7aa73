package modelconfig

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/wonny/harvest/backend/internal/forecast"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeYAML(t, `
meta:
  model_id: ridge_seasonal
  version: "2"
ridge:
  harmonics: 2
  trend_lambda: 0.5
  seasonal_lambda: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Meta.Version != "2" {
		t.Errorf("expected version=2, got %s", cfg.Meta.Version)
	}
	if cfg.Ridge.Harmonics != 2 || cfg.Ridge.TrendLambda != 0.5 || cfg.Ridge.SeasonalLambda != 2 {
		t.Errorf("unexpected ridge settings: %+v", cfg.Ridge)
	}

	hash, err := Hash(cfg)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("expected 64 char hash, got %d", len(hash))
	}

	// Same settings, same hash
	hash2, _ := Hash(cfg)
	if hash != hash2 {
		t.Error("hash not deterministic")
	}

	def, _ := Hash(Default())
	if hash == def {
		t.Error("different settings should hash differently")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeYAML(t, `
ridge:
  harmonics: 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ridge.Harmonics != 1 {
		t.Errorf("expected harmonics=1, got %d", cfg.Ridge.Harmonics)
	}
	if cfg.Meta.ModelID != "ridge_seasonal" || cfg.Ridge.SeasonalLambda != 1.0 {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadUnknownField(t *testing.T) {
	path := writeYAML(t, `
ridge:
  harmonic: 2
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing model id", func(c *Config) { c.Meta.ModelID = "" }, "meta.model_id"},
		{"negative harmonics", func(c *Config) { c.Ridge.Harmonics = -1 }, "ridge.harmonics"},
		{"too many harmonics", func(c *Config) { c.Ridge.Harmonics = 7 }, "ridge.harmonics"},
		{"negative trend lambda", func(c *Config) { c.Ridge.TrendLambda = -0.1 }, "ridge.trend_lambda"},
		{"NaN seasonal lambda", func(c *Config) { c.Ridge.SeasonalLambda = math.NaN() }, "ridge.seasonal_lambda"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}

	if err := Validate(Default()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestDefaultMatchesForecaster(t *testing.T) {
	want := forecast.DefaultRidgeOptions()
	got := Default().Ridge
	if got.Harmonics != want.Harmonics || got.TrendLambda != want.TrendLambda || got.SeasonalLambda != want.SeasonalLambda {
		t.Errorf("built-in model definition %+v differs from forecaster defaults %+v", got, want)
	}
}

package modelconfig

// Config is the forecasting model definition loaded from YAML
type Config struct {
	Meta  Meta  `yaml:"meta" json:"meta"`
	Ridge Ridge `yaml:"ridge" json:"ridge"`
}

// Meta identifies the model definition
type Meta struct {
	ModelID string `yaml:"model_id" json:"model_id"`
	Version string `yaml:"version" json:"version"`
}

// Ridge holds the seasonal ridge regression settings
type Ridge struct {
	Harmonics      int     `yaml:"harmonics" json:"harmonics"`             // Fourier pairs, 0 = trend only
	TrendLambda    float64 `yaml:"trend_lambda" json:"trend_lambda"`       // >= 0
	SeasonalLambda float64 `yaml:"seasonal_lambda" json:"seasonal_lambda"` // >= 0
}

// Default returns the built-in definition used when no file is configured
func Default() *Config {
	return &Config{
		Meta: Meta{
			ModelID: "ridge_seasonal",
			Version: "1",
		},
		Ridge: Ridge{
			Harmonics:      3,
			TrendLambda:    0.1,
			SeasonalLambda: 1.0,
		},
	}
}

package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/harvest/backend/internal/contracts"
)

const ridgeArtifactVersion = 1

// RidgeOptions tunes the trend + yearly seasonality regression
type RidgeOptions struct {
	Harmonics      int     // Fourier pairs for month-of-year seasonality
	TrendLambda    float64 // penalty on the linear trend coefficient
	SeasonalLambda float64 // penalty on each seasonal coefficient
}

// DefaultRidgeOptions returns the settings used by the pipeline
func DefaultRidgeOptions() RidgeOptions {
	return RidgeOptions{
		Harmonics:      3,
		TrendLambda:    0.1,
		SeasonalLambda: 1.0,
	}
}

// RidgeForecaster fits y = b0 + b1*t + sum(a_k sin + c_k cos) by penalised least squares.
// The intercept is never penalised.
type RidgeForecaster struct {
	opts RidgeOptions
}

// NewRidgeForecaster creates a forecaster
func NewRidgeForecaster(opts RidgeOptions) *RidgeForecaster {
	if opts.Harmonics < 0 {
		opts.Harmonics = 0
	}
	if opts.Harmonics > 6 {
		opts.Harmonics = 6
	}
	return &RidgeForecaster{opts: opts}
}

var _ contracts.Forecaster = (*RidgeForecaster)(nil)

type ridgeArtifact struct {
	Version      int       `json:"version"`
	Origin       time.Time `json:"origin"`
	Harmonics    int       `json:"harmonics"`
	Scale        float64   `json:"scale"`
	Coefficients []float64 `json:"coefficients"`
	Months       int       `json:"months"`
	LastMonth    time.Time `json:"last_month"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Fit trains on the series and returns a JSON artifact
func (f *RidgeForecaster) Fit(series contracts.Series) ([]byte, error) {
	n := series.Len()
	if n < contracts.DefaultMinHistoryMonths {
		return nil, contracts.ErrInsufficientHistory
	}

	y := make([]float64, n)
	for i, p := range series.Points {
		if math.IsNaN(p.KG) || math.IsInf(p.KG, 0) {
			return nil, fmt.Errorf("non-finite value at %s", p.Month.Format("2006-01"))
		}
		y[i] = p.KG
	}

	// Work in units of the largest magnitude so the penalties are scale free
	scale := math.Max(floats.Max(y), -floats.Min(y))
	if scale == 0 {
		scale = 1
	}
	floats.Scale(1/scale, y)

	// Short series cannot support seasonal terms; one harmonic per four months
	harmonics := f.opts.Harmonics
	if harmonics > n/4 {
		harmonics = n / 4
	}

	origin := series.First()
	p := 2 + 2*harmonics
	x := mat.NewDense(n, p, nil)
	for i, pt := range series.Points {
		x.SetRow(i, features(origin, pt.Month, harmonics))
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 1; j < p; j++ {
		lambda := f.opts.SeasonalLambda
		if j == 1 {
			lambda = f.opts.TrendLambda
		}
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}

	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sym.SetSym(i, j, xtx.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.New("normal equations are not positive definite")
	}

	var rhs mat.VecDense
	rhs.MulVec(x.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}

	coef := make([]float64, p)
	for i := range coef {
		coef[i] = beta.AtVec(i)
		if math.IsNaN(coef[i]) || math.IsInf(coef[i], 0) {
			return nil, errors.New("solution is not finite")
		}
	}

	return json.Marshal(ridgeArtifact{
		Version:      ridgeArtifactVersion,
		Origin:       origin,
		Harmonics:    harmonics,
		Scale:        scale,
		Coefficients: coef,
		Months:       n,
		LastMonth:    series.Last(),
		TrainedAt:    time.Now().UTC(),
	})
}

// Predict evaluates the fitted model at each date. Values are not clipped.
func (f *RidgeForecaster) Predict(artifact []byte, dates []time.Time) ([]float64, error) {
	var a ridgeArtifact
	if err := json.Unmarshal(artifact, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Version != ridgeArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if len(a.Coefficients) != 2+2*a.Harmonics {
		return nil, fmt.Errorf("artifact has %d coefficients for %d harmonics", len(a.Coefficients), a.Harmonics)
	}

	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = floats.Dot(a.Coefficients, features(a.Origin, contracts.MonthStart(d), a.Harmonics)) * a.Scale
	}
	return out, nil
}

// features builds [1, t, sin(2πk m/12), cos(2πk m/12)...] with t in years since origin
func features(origin, month time.Time, harmonics int) []float64 {
	row := make([]float64, 2+2*harmonics)
	row[0] = 1
	row[1] = float64(contracts.MonthsBetween(origin, month)) / 12
	m := float64(month.Month() - 1)
	for k := 1; k <= harmonics; k++ {
		angle := 2 * math.Pi * float64(k) * m / 12
		row[2*k] = math.Sin(angle)
		row[2*k+1] = math.Cos(angle)
	}
	return row
}

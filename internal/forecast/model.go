// Package forecast holds the forecasting model used by the forecast unit and the training commands.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

const moduleForecast = "forecast"

// Supported estimators.
const (
	EstimatorSES  = "ses"
	EstimatorHolt = "holt"
)

// Model is a fitted forecaster. Predict extends series by horizon steps without refitting.
type Model interface {
	IsFitted() bool
	Predict(series []float64, horizon int) ([]float64, error)
}

// SupportedEstimators lists the estimator names NewSmoothingModel accepts.
func SupportedEstimators() []string {
	return []string{EstimatorHolt, EstimatorSES}
}

// defaultParams are used for parameters an estimator needs but the caller did not supply.
var defaultParams = map[string]map[string]float64{
	EstimatorSES:  {"alpha": 0.5},
	EstimatorHolt: {"alpha": 0.5, "beta": 0.1, "phi": 1.0},
}

// SmoothingModel is exponential smoothing: simple (ses) or damped-trend Holt (holt).
type SmoothingModel struct {
	Estimator string             `json:"estimator"`
	Params    map[string]float64 `json:"params"`
	Fitted    bool               `json:"fitted"`
	TrainedAt time.Time          `json:"trained_at"`
	TrainSize int                `json:"train_size"`
}

// NewSmoothingModel creates an unfitted model. Unknown estimators and out-of-range parameters are configuration errors.
func NewSmoothingModel(estimator string, params map[string]float64) (*SmoothingModel, error) {
	defaults, ok := defaultParams[estimator]
	if !ok {
		return nil, exception.NewConfigurationError(moduleForecast, fmt.Sprintf("unsupported estimator: %s", estimator), nil)
	}
	merged := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range params {
		if _, known := defaults[k]; !known {
			return nil, exception.NewConfigurationError(moduleForecast, fmt.Sprintf("estimator %s has no parameter %s", estimator, k), nil)
		}
		merged[k] = v
	}
	m := &SmoothingModel{Estimator: estimator, Params: merged}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SmoothingModel) validate() error {
	names := make([]string, 0, len(m.Params))
	for k := range m.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v := m.Params[k]
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return exception.NewConfigurationError(moduleForecast, fmt.Sprintf("parameter %s=%v of %s must be in (0, 1]", k, v, m.Estimator), nil)
		}
	}
	return nil
}

// Fit marks the model as trained on series. The smoothing parameters are chosen by the caller (grid search);
// fitting only checks the series is usable.
func (m *SmoothingModel) Fit(series []float64, at time.Time) error {
	if len(series) < m.minSeries() {
		return exception.NewBatchErrorf(moduleForecast, "%s needs at least %d observations, got %d", m.Estimator, m.minSeries(), len(series))
	}
	m.Fitted = true
	m.TrainedAt = at.UTC()
	m.TrainSize = len(series)
	return nil
}

// IsFitted implements Model.
func (m *SmoothingModel) IsFitted() bool {
	return m != nil && m.Fitted
}

// Predict runs the smoothing recursion over series with the fitted parameters and extrapolates horizon steps.
func (m *SmoothingModel) Predict(series []float64, horizon int) ([]float64, error) {
	if !m.IsFitted() {
		return nil, exception.NewModelNotFittedError(moduleForecast, "model has not been fitted; train it before forecasting")
	}
	if horizon <= 0 {
		return nil, exception.NewBatchErrorf(moduleForecast, "horizon must be positive, got %d", horizon)
	}
	if len(series) < m.minSeries() {
		return nil, exception.NewBatchErrorf(moduleForecast, "%s needs at least %d observations, got %d", m.Estimator, m.minSeries(), len(series))
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, exception.NewBatchErrorf(moduleForecast, "observation %d is not finite", i)
		}
	}

	switch m.Estimator {
	case EstimatorSES:
		return ses(series, m.Params["alpha"], horizon), nil
	case EstimatorHolt:
		return holt(series, m.Params["alpha"], m.Params["beta"], m.Params["phi"], horizon), nil
	default:
		return nil, exception.NewConfigurationError(moduleForecast, fmt.Sprintf("unsupported estimator: %s", m.Estimator), nil)
	}
}

func (m *SmoothingModel) minSeries() int {
	if m.Estimator == EstimatorHolt {
		return 2
	}
	return 1
}

func ses(y []float64, alpha float64, horizon int) []float64 {
	level := y[0]
	for _, v := range y[1:] {
		level = alpha*v + (1-alpha)*level
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = level
	}
	return out
}

// holt is additive-trend exponential smoothing with damping phi; phi=1 is the undamped trend.
func holt(y []float64, alpha, beta, phi float64, horizon int) []float64 {
	level, trend := y[0], y[1]-y[0]
	for _, v := range y[1:] {
		prev := level
		level = alpha*v + (1-alpha)*(prev+phi*trend)
		trend = beta*(level-prev) + (1-beta)*phi*trend
	}
	out := make([]float64, horizon)
	damp, acc := 1.0, 0.0
	for h := range out {
		damp *= phi
		acc += damp
		out[h] = level + acc*trend
	}
	return out
}

var _ Model = (*SmoothingModel)(nil)

package train

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/forecast"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Result is the outcome of the grid search, written to the training results file.
type Result struct {
	Estimator  string             `json:"estimator"`
	BestScore  float64            `json:"best-score"`
	BestParams map[string]float64 `json:"best-params"`
}

// Train grid-searches every configured estimator with sliding-window cross validation scored by MAPE,
// fits the best candidate on the whole training set and writes the model artifact and the results file.
func Train(cfg config.TrainConfig, now time.Time) (*Result, error) {
	obs, err := ReadSeries(cfg.Split.TrainOutputPath)
	if err != nil {
		return nil, err
	}
	series := values(obs)
	tuner := cfg.Tuner

	var best *Result
	for _, estimator := range tuner.Estimators {
		grid, err := paramGrid(estimator, tuner.Params[estimator])
		if err != nil {
			return nil, err
		}
		for _, params := range grid {
			m, err := forecast.NewSmoothingModel(estimator, params)
			if err != nil {
				return nil, err
			}
			score, err := crossValidate(m, series, tuner.CV)
			if err != nil {
				return nil, err
			}
			logger.Debugf("Tuner: %s %v scored %.6f.", estimator, params, score)
			if best == nil || score < best.BestScore {
				best = &Result{Estimator: estimator, BestScore: score, BestParams: params}
			}
		}
		logger.Infof("Tuner: evaluated %d candidates of %s.", len(grid), estimator)
	}
	if best == nil {
		return nil, exception.NewConfigurationError(moduleTrain, "no estimator configured", nil)
	}

	model, err := forecast.NewSmoothingModel(best.Estimator, best.BestParams)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(series, now); err != nil {
		return nil, err
	}
	if err := forecast.SaveModel(tuner.ModelPath, model); err != nil {
		return nil, err
	}
	if err := writeJSON(tuner.TrainingResults, best); err != nil {
		return nil, err
	}
	logger.Infof("Tuner: best %s %v with MAPE %.6f, model written to %s.", best.Estimator, best.BestParams, best.BestScore, tuner.ModelPath)
	return best, nil
}

// paramGrid expands candidate values into every combination, in a stable order.
func paramGrid(estimator string, candidates map[string][]float64) ([]map[string]float64, error) {
	if !isSupported(estimator) {
		return nil, exception.NewConfigurationError(moduleTrain, fmt.Sprintf("unsupported estimator: %s", estimator), nil)
	}
	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)

	grid := []map[string]float64{{}}
	for _, name := range names {
		var next []map[string]float64
		for _, partial := range grid {
			for _, v := range candidates[name] {
				combo := make(map[string]float64, len(partial)+1)
				for k, pv := range partial {
					combo[k] = pv
				}
				combo[name] = v
				next = append(next, combo)
			}
		}
		if len(next) > 0 {
			grid = next
		}
	}
	return grid, nil
}

func isSupported(estimator string) bool {
	for _, s := range forecast.SupportedEstimators() {
		if s == estimator {
			return true
		}
	}
	return false
}

// crossValidate averages the MAPE over sliding windows: each fold trains on WindowLength observations and
// scores the next FH, and windows advance by StepSize.
func crossValidate(m *forecast.SmoothingModel, series []float64, cv config.CVConfig) (float64, error) {
	total, folds := 0.0, 0
	for end := cv.WindowLength; end+cv.FH <= len(series); end += cv.StepSize {
		if err := m.Fit(series[end-cv.WindowLength:end], time.Time{}); err != nil {
			return 0, err
		}
		pred, err := m.Predict(series[end-cv.WindowLength:end], cv.FH)
		if err != nil {
			return 0, err
		}
		total += MAPE(series[end:end+cv.FH], pred)
		folds++
	}
	if folds == 0 {
		return 0, exception.NewBatchErrorf(moduleTrain, "series of %d observations is too short for window %d and horizon %d",
			len(series), cv.WindowLength, cv.FH)
	}
	return total / float64(folds), nil
}

// MAPE is the mean absolute percentage error as a fraction. Zero actuals are left out.
func MAPE(actual, pred []float64) float64 {
	sum, n := 0.0, 0
	for i := range actual {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs((actual[i] - pred[i]) / actual[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to encode %s", path), err, false, false)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to create directory for %s", path), err, false, false)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to write %s", path), err, false, false)
	}
	return nil
}

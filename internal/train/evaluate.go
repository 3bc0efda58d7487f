package train

import (
	"math"
	"time"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/forecast"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Metrics is written to the evaluation metrics file.
type Metrics struct {
	MAPE float64 `json:"mean-absolute-percentage-error"`
	MSPE float64 `json:"mean-squared-percentage-error"`
	MAE  float64 `json:"mean-absolute-error"`
	MSE  float64 `json:"mean-squared-error"`
}

// Evaluate forecasts the test period from the tail of the training set with the saved model and scores it.
// The predictions are written next to the metrics as reading_date,actual,predicted.
func Evaluate(cfg config.TrainConfig) (*Metrics, error) {
	trainObs, err := ReadSeries(cfg.Split.TrainOutputPath)
	if err != nil {
		return nil, err
	}
	testObs, err := ReadSeries(cfg.Split.TestOutputPath)
	if err != nil {
		return nil, err
	}
	model, err := forecast.LoadModel(cfg.Tuner.ModelPath)
	if err != nil {
		return nil, err
	}

	history := trainObs
	if n := cfg.Evaluate.HistoryDays; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	fh := cfg.Tuner.CV.FH
	if fh > len(testObs) {
		fh = len(testObs)
	}
	if fh == 0 {
		return nil, exception.NewBatchErrorf(moduleTrain, "test set %s is empty", cfg.Split.TestOutputPath)
	}

	pred, err := model.Predict(values(history), fh)
	if err != nil {
		return nil, err
	}
	actual := values(testObs[:fh])
	m := Score(actual, pred)

	if err := writeJSON(cfg.Evaluate.MetricsFile, m); err != nil {
		return nil, err
	}
	rows := make([][]string, fh)
	for i := range rows {
		rows[i] = []string{testObs[i].Date.Format(time.DateOnly), formatFloat(actual[i]), formatFloat(pred[i])}
	}
	if err := writeCSV(cfg.Evaluate.PredictionsFile, []string{"reading_date", "actual", "predicted"}, rows); err != nil {
		return nil, err
	}
	logger.Infof("Evaluation over %d days: MAPE %.4f, MAE %.4f.", fh, m.MAPE, m.MAE)
	return m, nil
}

// Score computes the evaluation metrics. Percentage errors are fractions and skip zero actuals.
func Score(actual, pred []float64) *Metrics {
	m := &Metrics{MAPE: MAPE(actual, pred)}
	sqPerc, nPerc := 0.0, 0
	for i := range actual {
		e := actual[i] - pred[i]
		m.MAE += math.Abs(e)
		m.MSE += e * e
		if actual[i] != 0 {
			sqPerc += (e / actual[i]) * (e / actual[i])
			nPerc++
		}
	}
	n := float64(len(actual))
	m.MAE /= n
	m.MSE /= n
	if nPerc > 0 {
		m.MSPE = sqPerc / float64(nPerc)
	}
	return m
}

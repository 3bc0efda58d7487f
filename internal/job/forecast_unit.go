package job

import (
	"context"
	"time"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/forecast"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// ModelLoader supplies the fitted model of a forecast run.
type ModelLoader func() (forecast.Model, error)

// FileModelLoader loads the artifact at path on every call, so a retrained model is picked up by the next run.
func FileModelLoader(path string) ModelLoader {
	return func() (forecast.Model, error) {
		return forecast.LoadModel(path)
	}
}

// ForecastUnit predicts the forecast horizon from the daily history window.
type ForecastUnit struct {
	deps      Deps
	loadModel ModelLoader
}

func NewForecastUnit(deps Deps, loadModel ModelLoader) *ForecastUnit {
	return &ForecastUnit{deps: deps, loadModel: loadModel}
}

// Run forecasts from the history ending on runDate. Forecasts are appended unless model.reconcile_forecasts
// is set, in which case the predicted dates are cleared first. An empty history is logged and skipped.
func (u *ForecastUnit) Run(ctx context.Context, runDate time.Time) (*model.UnitExecution, error) {
	cfg := u.deps.Config
	policies := cfg.Policies
	repo := u.deps.Repo

	return u.deps.Runner.Run(ctx, UnitForecast, runDate, func(ctx context.Context, unit *runner.Unit) error {
		m, err := u.loadModel()
		if err != nil {
			return err
		}

		session := unit.Session()
		history, err := runner.StageValue(ctx, unit, model.UnitStatusFetching, "load_history", policies.Query, func(ctx context.Context) ([]entity.DailyReading, error) {
			return memoize(ctx, u.deps, func(ctx context.Context) ([]entity.DailyReading, error) {
				return repo.LoadHistory(ctx, session, runDate, cfg.Pipeline.HistoryWindowDays)
			}, "history", day(runDate), cfg.Pipeline.HistoryWindowDays)
		})
		if err != nil {
			return err
		}
		if len(history) == 0 {
			logger.Warnf("Forecast %s: no daily history in the last %d days, nothing to forecast.", day(runDate), cfg.Pipeline.HistoryWindowDays)
			unit.MarkNoOp()
			return nil
		}

		records, err := runner.StageValue(ctx, unit, model.UnitStatusFetching, "forecast", policies.Forecast, func(ctx context.Context) ([]entity.ForecastRecord, error) {
			return forecast.Forecast(m, history, cfg.Pipeline.ForecastHorizon)
		})
		if err != nil {
			return err
		}

		if cfg.Model.ReconcileForecasts {
			if err := unit.Stage(ctx, model.UnitStatusReconciling, "reconcile", policies.Store, func(ctx context.Context) error {
				for _, d := range forecastDates(records) {
					if _, err := repo.Forecast.Reconcile(ctx, session, d); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return err
			}
		}

		return unit.Stage(ctx, model.UnitStatusInserting, "insert", policies.Store, func(ctx context.Context) error {
			n, err := repo.Forecast.Write(ctx, session, records)
			if err != nil {
				return err
			}
			unit.AddRows(ctx, entity.ForecastTable, n)
			return nil
		})
	})
}

func forecastDates(records []entity.ForecastRecord) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, r := range records {
		d := entity.Day(r.ReadingDate)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	return dates
}

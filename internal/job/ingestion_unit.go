package job

import (
	"context"
	"time"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	dmodel "github.com/tigerroll/weatherflow/internal/domain/model"
	"github.com/tigerroll/weatherflow/internal/step/processor"
	"github.com/tigerroll/weatherflow/internal/step/reader"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// IngestionUnit fetches one day of hourly observations and replaces that day in the hourly table.
type IngestionUnit struct {
	deps      Deps
	fetcher   reader.Fetcher
	processor *processor.HourlyTransformProcessor
}

// NewIngestionUnit creates the unit for the configured location.
func NewIngestionUnit(deps Deps, fetcher reader.Fetcher) *IngestionUnit {
	return &IngestionUnit{
		deps:      deps,
		fetcher:   fetcher,
		processor: processor.NewHourlyTransformProcessor(deps.Config.WeatherAPI.LocationID),
	}
}

// Run executes fetch, transform, reconcile, insert and prune for runDate.
func (u *IngestionUnit) Run(ctx context.Context, runDate time.Time) (*model.UnitExecution, error) {
	cfg := u.deps.Config
	policies := cfg.Policies
	repo := u.deps.Repo

	return u.deps.Runner.Run(ctx, UnitIngestion, runDate, func(ctx context.Context, unit *runner.Unit) error {
		req := reader.RequestFor(cfg.WeatherAPI, runDate)
		batch, err := runner.StageValue(ctx, unit, model.UnitStatusFetching, "fetch", policies.Fetch, func(ctx context.Context) (*dmodel.RawBatch, error) {
			return memoize(ctx, u.deps, func(ctx context.Context) (*dmodel.RawBatch, error) {
				return u.fetcher.Fetch(ctx, req)
			}, "fetch", req)
		})
		if err != nil {
			return err
		}

		rows, err := runner.StageValue(ctx, unit, model.UnitStatusFetching, "transform", policies.Transform, func(ctx context.Context) ([]entity.HourlyReading, error) {
			return u.processor.Transform(batch)
		})
		if err != nil {
			return err
		}

		session := unit.Session()
		if err := unit.Stage(ctx, model.UnitStatusReconciling, "reconcile", policies.Store, func(ctx context.Context) error {
			deleted, err := repo.Hourly.Reconcile(ctx, session, runDate)
			if err == nil && deleted > 0 {
				logger.Infof("Ingestion %s: replaced %d existing hourly rows.", day(runDate), deleted)
			}
			return err
		}); err != nil {
			return err
		}

		if err := unit.Stage(ctx, model.UnitStatusInserting, "insert", policies.Store, func(ctx context.Context) error {
			n, err := repo.Hourly.Write(ctx, session, rows)
			if err != nil {
				return err
			}
			unit.AddRows(ctx, entity.HourlyTable, n)
			return nil
		}); err != nil {
			return err
		}

		return unit.Stage(ctx, model.UnitStatusPruning, "prune", policies.Store, func(ctx context.Context) error {
			_, err := repo.Hourly.Prune(ctx, session, runDate, cfg.Pipeline.HourlyRetentionDays)
			return err
		})
	})
}

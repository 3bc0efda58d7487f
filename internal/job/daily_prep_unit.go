package job

import (
	"context"
	"time"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// DailyPrepUnit rolls the hourly readings of one date up into the daily table.
type DailyPrepUnit struct {
	deps Deps
}

func NewDailyPrepUnit(deps Deps) *DailyPrepUnit {
	return &DailyPrepUnit{deps: deps}
}

// Run aggregates runDate. ready is false when no hourly rows exist for runDate; nothing is written then
// and err is nil.
func (u *DailyPrepUnit) Run(ctx context.Context, runDate time.Time) (ready bool, err error) {
	cfg := u.deps.Config
	policies := cfg.Policies
	repo := u.deps.Repo

	_, err = u.deps.Runner.Run(ctx, UnitDailyPrep, runDate, func(ctx context.Context, unit *runner.Unit) error {
		session := unit.Session()
		rows, err := runner.StageValue(ctx, unit, model.UnitStatusAggregating, "aggregate", policies.Query, func(ctx context.Context) ([]entity.DailyReading, error) {
			return repo.AggregateDaily(ctx, session, runDate)
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			logger.Warnf("Daily preparation %s: no hourly readings yet, nothing to aggregate.", day(runDate))
			unit.MarkNoOp()
			return nil
		}

		if err := unit.Stage(ctx, model.UnitStatusReconciling, "reconcile", policies.Store, func(ctx context.Context) error {
			_, err := repo.Daily.Reconcile(ctx, session, runDate)
			return err
		}); err != nil {
			return err
		}
		if err := unit.Stage(ctx, model.UnitStatusInserting, "insert", policies.Store, func(ctx context.Context) error {
			n, err := repo.Daily.Write(ctx, session, rows)
			if err != nil {
				return err
			}
			unit.AddRows(ctx, entity.DailyTable, n)
			return nil
		}); err != nil {
			return err
		}
		if err := unit.Stage(ctx, model.UnitStatusPruning, "prune", policies.Store, func(ctx context.Context) error {
			_, err := repo.Daily.Prune(ctx, session, runDate, cfg.Pipeline.DailyRetentionDays)
			return err
		}); err != nil {
			return err
		}
		ready = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ready, nil
}

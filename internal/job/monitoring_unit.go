package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/monitoring"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// MonitoringUnit scores past forecasts against observed daily temperatures, one record per location.
type MonitoringUnit struct {
	deps Deps
}

func NewMonitoringUnit(deps Deps) *MonitoringUnit {
	return &MonitoringUnit{deps: deps}
}

// Run joins forecasts and observations in [runDate-start, runDate-end], replaces the record of every
// location for runDate and prunes the monitoring table once.
func (u *MonitoringUnit) Run(ctx context.Context, runDate time.Time) (*model.UnitExecution, error) {
	cfg := u.deps.Config
	policies := cfg.Policies
	repo := u.deps.Repo
	from := runDate.AddDate(0, 0, -cfg.Pipeline.MonitoringWindowStartDays)
	to := runDate.AddDate(0, 0, -cfg.Pipeline.MonitoringWindowEndDays)

	return u.deps.Runner.Run(ctx, UnitMonitoring, runDate, func(ctx context.Context, unit *runner.Unit) error {
		session := unit.Session()
		pairs, err := runner.StageValue(ctx, unit, model.UnitStatusFetching, "load_joined", policies.Query, func(ctx context.Context) ([]entity.JoinedPair, error) {
			return memoize(ctx, u.deps, func(ctx context.Context) ([]entity.JoinedPair, error) {
				return repo.LoadJoined(ctx, session, from, to)
			}, "joined", day(from), day(to))
		})
		if err != nil {
			return err
		}
		if len(pairs) == 0 {
			logger.Warnf("Monitoring %s: no forecasts matched observations between %s and %s.", day(runDate), day(from), day(to))
			unit.MarkNoOp()
			return nil
		}

		records, err := runner.StageValue(ctx, unit, model.UnitStatusFetching, "report", policies.Monitor, func(ctx context.Context) ([]entity.MonitoringRecord, error) {
			return u.report(ctx, runDate, pairs)
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			unit.MarkNoOp()
			return nil
		}

		if err := unit.Stage(ctx, model.UnitStatusReconciling, "reconcile", policies.Store, func(ctx context.Context) error {
			for _, r := range records {
				if _, err := repo.Monitoring.ReconcileLocation(ctx, session, runDate, r.LocationID); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		if err := unit.Stage(ctx, model.UnitStatusInserting, "insert", policies.Store, func(ctx context.Context) error {
			n, err := repo.Monitoring.Write(ctx, session, records)
			if err != nil {
				return err
			}
			unit.AddRows(ctx, entity.MonitoringTable, n)
			return nil
		}); err != nil {
			return err
		}
		return unit.Stage(ctx, model.UnitStatusPruning, "prune", policies.Store, func(ctx context.Context) error {
			_, err := repo.Monitoring.Prune(ctx, session, runDate, cfg.Pipeline.MonitoringRetentionDays)
			return err
		})
	})
}

// report computes the locations concurrently. A location with too few pairs is skipped with a warning;
// any other failure fails the report after every location has been tried.
func (u *MonitoringUnit) report(ctx context.Context, runDate time.Time, pairs []entity.JoinedPair) ([]entity.MonitoringRecord, error) {
	ids, groups := monitoring.GroupByLocation(pairs)
	results := make([]*entity.MonitoringRecord, len(ids))

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.deps.Config.Pipeline.MonitoringConcurrency)
	for i, loc := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			locPairs := groups[loc]
			if len(locPairs) < monitoring.MinPairs {
				logger.Warnf("Monitoring %s: location %d has %d joined pairs, skipping.", day(runDate), loc, len(locPairs))
				return nil
			}
			r, err := monitoring.ComputeMetrics(locPairs)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("location %d: %w", loc, err))
				mu.Unlock()
				return nil
			}
			rec := r.Record(loc, runDate)
			results[i] = &rec
			logger.Debugf("Monitoring %s: location %d rmse=%.3f over %d pairs.", day(runDate), loc, r.RMSE, r.Pairs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, errs
	}

	records := make([]entity.MonitoringRecord, 0, len(ids))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, nil
}

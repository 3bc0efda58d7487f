// Package job wires the pipeline units: ingestion, daily preparation, forecast and monitoring,
// plus the parent daily job chaining the first two.
package job

import (
	"context"
	"time"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/weatherflow/pkg/batch/support/cache"
)

// Unit names, as recorded in batch_unit_execution.
const (
	UnitIngestion  = "ingestion"
	UnitDailyPrep  = "daily_prep"
	UnitForecast   = "forecast"
	UnitMonitoring = "monitoring"
)

// Deps is shared by every unit.
type Deps struct {
	Runner *runner.UnitRunner
	Repo   *repository.WeatherRepository
	Config *config.Config
	// Cache memoizes fetches and history queries. Nil disables memoization.
	Cache cache.Cache
}

// memoize caches fn's result under the hash of parts for the configured TTL.
func memoize[T any](ctx context.Context, d Deps, fn func(ctx context.Context) (T, error), parts ...any) (T, error) {
	key, err := cache.Key(parts...)
	if err != nil {
		return fn(ctx)
	}
	return cache.Memoize(ctx, d.Cache, d.Config.Cache.TTL, key, fn)
}

func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

package job

import (
	"go.uber.org/fx"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/weatherflow/pkg/batch/support/cache"
)

// DepsParams defines dependencies shared by the units.
type DepsParams struct {
	fx.In
	Runner *runner.UnitRunner
	Repo   *repository.WeatherRepository
	Config *config.Config
	Cache  cache.Cache `optional:"true"`
}

// NewDeps collects DepsParams.
func NewDeps(p DepsParams) Deps {
	return Deps{Runner: p.Runner, Repo: p.Repo, Config: p.Config, Cache: p.Cache}
}

// NewModelLoader reads the artifact at model.path.
func NewModelLoader(cfg *config.Config) ModelLoader {
	return FileModelLoader(cfg.Model.Path)
}

// Module provides every unit, the daily job and the pipeline. A reader.Fetcher must be provided elsewhere.
var Module = fx.Options(
	fx.Provide(
		NewDeps,
		NewModelLoader,
		NewIngestionUnit,
		NewDailyPrepUnit,
		NewDailyJob,
		NewForecastUnit,
		NewMonitoringUnit,
		NewPipeline,
	),
)

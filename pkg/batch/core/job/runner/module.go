package runner

import (
	"go.uber.org/fx"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	repository "github.com/tigerroll/weatherflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
)

// UnitRunnerParams defines dependencies for UnitRunner.
type UnitRunnerParams struct {
	fx.In
	Resolver database.DBConnectionResolver
	DBName   string `name:"pipelineDB"`
	Repo     repository.UnitExecutionRepository
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewUnitRunnerFromParams builds a UnitRunner from the Fx graph.
func NewUnitRunnerFromParams(p UnitRunnerParams) *UnitRunner {
	return NewUnitRunner(p.Resolver, p.DBName, p.Repo, p.Recorder, p.Tracer)
}

// Module provides the UnitRunner.
var Module = fx.Options(
	fx.Provide(NewUnitRunnerFromParams),
)

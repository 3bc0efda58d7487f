// Package app assembles the weatherflow dependency graph with fx.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/dashboard"
	"github.com/tigerroll/weatherflow/internal/export"
	"github.com/tigerroll/weatherflow/internal/job"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/internal/schedule"
	"github.com/tigerroll/weatherflow/internal/schema"
	"github.com/tigerroll/weatherflow/internal/step/reader"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/local"
	coreRepository "github.com/tigerroll/weatherflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	infraMetrics "github.com/tigerroll/weatherflow/pkg/batch/infrastructure/metrics"
	sqlRepository "github.com/tigerroll/weatherflow/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/weatherflow/pkg/batch/support/cache"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// ServiceName identifies the process in telemetry.
const ServiceName = "weatherflow"

// Components are the entry points the commands use.
type Components struct {
	fx.In
	Config    *config.Config
	Conn      database.DBConnection
	Repo      *repository.WeatherRepository
	Ingestion *job.IngestionUnit
	DailyPrep *job.DailyPrepUnit
	Daily     *job.DailyJob
	Forecast  *job.ForecastUnit
	Monitor   *job.MonitoringUnit
	Pipeline  *job.Pipeline
	Exporter  *export.Exporter
	Scheduler *schedule.Scheduler
	Dashboard *dashboard.Server
}

// Module returns every provider for cfg.
func Module(cfg *config.Config) (fx.Option, error) {
	dbs, err := cfg.DatabaseConfigs()
	if err != nil {
		return nil, err
	}
	stores, err := cfg.StorageConfigs()
	if err != nil {
		return nil, err
	}
	return fx.Options(
		logger.Module,
		fx.Supply(
			cfg,
			dbs,
			stores,
			cfg.Metrics,
			cfg.Tracing,
			fx.Annotate(ServiceName, fx.ResultTags(`name:"serviceName"`)),
			fx.Annotate(cfg.DatabaseRef, fx.ResultTags(`name:"pipelineDB"`)),
		),

		gormadapter.Module,
		sqlite.Module,
		postgres.Module,
		mysql.Module,
		storage.Module,
		local.Module,
		gcs.Module,
		infraMetrics.Module,
		runner.Module,
		job.Module,

		fx.Provide(
			NewPipelineConnection,
			NewUnitExecutionRepository,
			NewCache,
			NewFetcher,
			NewGatherer,
			repository.NewWeatherRepository,
			NewExporter,
			NewScheduler,
			NewDashboard,
		),
		fx.Invoke(AutoMigrate),
	), nil
}

// NewPipelineConnection resolves the connection named by database_ref.
func NewPipelineConnection(resolver database.DBConnectionResolver, cfg *config.Config) (database.DBConnection, error) {
	conn, err := resolver.ResolveDBConnection(context.Background(), cfg.DatabaseRef)
	if err != nil {
		return nil, exception.NewConfigurationError("app", fmt.Sprintf("failed to open database '%s'", cfg.DatabaseRef), err)
	}
	return conn, nil
}

// NewUnitExecutionRepository records unit runs in batch_unit_execution of the pipeline database.
func NewUnitExecutionRepository(resolver database.DBConnectionResolver, cfg *config.Config) coreRepository.UnitExecutionRepository {
	return sqlRepository.NewSQLUnitExecutionRepository(resolver, cfg.DatabaseRef)
}

// NewCache builds the memoization backend. "none" disables memoization.
func NewCache(lc fx.Lifecycle, cfg *config.Config) cache.Cache {
	switch cfg.Cache.Backend {
	case "redis":
		rc := cache.NewRedisCacheFromAddr(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, ServiceName+":")
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return rc.Close() }})
		logger.Infof("Using redis cache at %s.", cfg.Cache.RedisAddr)
		return rc
	case "none":
		return nil
	default:
		return cache.NewMemoryCache()
	}
}

// NewFetcher is the Open-Meteo archive client.
func NewFetcher(cfg *config.Config) reader.Fetcher {
	return reader.NewOpenMeteoClient(cfg.WeatherAPI, nil)
}

// NewGatherer exposes the Prometheus registry of the recorder, or an empty one when metrics are off.
func NewGatherer(t *infraMetrics.Telemetry) prometheus.Gatherer {
	if t.Prometheus == nil {
		return prometheus.NewRegistry()
	}
	return t.Prometheus.GetRegistry()
}

// NewExporter archives to the storage named by export.storage_ref.
func NewExporter(repo *repository.WeatherRepository, resolver *storage.ConnectionResolver, cfg *config.Config) *export.Exporter {
	return export.NewExporter(repo, resolver, cfg.Export)
}

// NewScheduler runs the pipeline daily.
func NewScheduler(pipeline *job.Pipeline, cfg *config.Config) (*schedule.Scheduler, error) {
	return schedule.New(cfg.Schedule, pipeline)
}

// NewDashboard serves the query API over the pipeline database.
func NewDashboard(conn database.DBConnection, repo *repository.WeatherRepository, gatherer prometheus.Gatherer, cfg *config.Config) *dashboard.Server {
	return dashboard.NewServer(conn, repo, cfg.Dashboard, gatherer)
}

// AutoMigrate applies the schema at startup when auto_migrate is set.
func AutoMigrate(lc fx.Lifecycle, conn database.DBConnection, cfg *config.Config) {
	if !cfg.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		logger.Infof("Applying schema migrations to '%s'.", cfg.DatabaseRef)
		return schema.Migrate(ctx, conn)
	}})
}


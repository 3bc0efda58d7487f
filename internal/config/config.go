// Package config holds the typed configuration of the weatherflow application.
package config

import (
	"fmt"
	"slices"
	"time"

	dbconfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/config"
	storageConfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/weatherflow/pkg/batch/core/config"
	"github.com/tigerroll/weatherflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/weatherflow/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

// EnvPrefix prefixes every environment override, e.g. WEATHERFLOW_PIPELINE_FORECAST_HORIZON.
const EnvPrefix = "WEATHERFLOW_"

// TemperatureVariable is the hourly series every fetch must include.
const TemperatureVariable = "temperature_2m"

// Config is the root configuration.
type Config struct {
	System coreConfig.SystemConfig `yaml:"system"`
	// Database holds named connections. Entries are decoded with dbconfig.DecodeAll.
	Database map[string]any `yaml:"database"`
	// DatabaseRef names the connection holding the pipeline tables.
	DatabaseRef string `yaml:"database_ref" validate:"required"`
	// AutoMigrate applies the embedded schema migrations before any command touching the store.
	AutoMigrate bool `yaml:"auto_migrate"`
	// Storage holds named object storage connections, decoded with storageConfig.DecodeAll.
	Storage map[string]any `yaml:"storage"`

	WeatherAPI WeatherAPIConfig      `yaml:"weather_api"`
	Pipeline   PipelineConfig        `yaml:"pipeline"`
	Policies   PoliciesConfig        `yaml:"policies"`
	Cache      CacheConfig           `yaml:"cache"`
	Model      ModelConfig           `yaml:"model"`
	Train      TrainConfig           `yaml:"train"`
	Dashboard  DashboardConfig       `yaml:"dashboard"`
	Schedule   ScheduleConfig        `yaml:"schedule"`
	Export     ExportConfig          `yaml:"export"`
	Metrics    metrics.MetricsConfig `yaml:"metrics"`
	Tracing    metrics.TracingConfig `yaml:"tracing"`
}

// WeatherAPIConfig describes the Open-Meteo archive request.
type WeatherAPIConfig struct {
	URL        string        `yaml:"url" validate:"required,url"`
	Latitude   float64       `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64       `yaml:"longitude" validate:"gte=-180,lte=180"`
	Variables  []string      `yaml:"variables" validate:"required,min=1"`
	Timezone   string        `yaml:"timezone" validate:"required"`
	LocationID int64         `yaml:"location_id" validate:"required"`
	APIToken   string        `yaml:"api_token"`
	Timeout    time.Duration `yaml:"timeout"`
	// MinSamples is the completeness threshold of one fetch.
	MinSamples int `yaml:"min_samples" validate:"gte=1"`
}

// PipelineConfig holds the windowing constants of every unit, in days.
type PipelineConfig struct {
	HourlyRetentionDays       int `yaml:"hourly_retention_days" validate:"gt=0"`
	DailyRetentionDays        int `yaml:"daily_retention_days" validate:"gt=0"`
	MonitoringRetentionDays   int `yaml:"monitoring_retention_days" validate:"gt=0"`
	HistoryWindowDays         int `yaml:"history_window_days" validate:"gt=0"`
	ForecastHorizon           int `yaml:"forecast_horizon" validate:"gt=0"`
	MonitoringWindowStartDays int `yaml:"monitoring_window_start_days" validate:"gtfield=MonitoringWindowEndDays"`
	MonitoringWindowEndDays   int `yaml:"monitoring_window_end_days" validate:"gte=0"`
	MonitoringConcurrency     int `yaml:"monitoring_concurrency" validate:"gte=1"`
}

// PoliciesConfig holds one retry policy per stage kind.
type PoliciesConfig struct {
	Fetch     retry.Policy `yaml:"fetch"`
	Transform retry.Policy `yaml:"transform"`
	Store     retry.Policy `yaml:"store"`
	Query     retry.Policy `yaml:"query"`
	Forecast  retry.Policy `yaml:"forecast"`
	Monitor   retry.Policy `yaml:"monitor"`
}

// CacheConfig selects the memoization backend of fetch and query stages.
type CacheConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=memory redis none"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// ModelConfig locates the fitted forecasting model.
type ModelConfig struct {
	Path string `yaml:"path" validate:"required"`
	// ReconcileForecasts deletes the forecast horizon dates before inserting a new forecast.
	ReconcileForecasts bool `yaml:"reconcile_forecasts"`
}

// TrainConfig configures the one-shot training commands.
type TrainConfig struct {
	Extract  ExtractConfig  `yaml:"extract"`
	Split    SplitConfig    `yaml:"split"`
	Tuner    TunerConfig    `yaml:"tuner"`
	Evaluate EvaluateConfig `yaml:"evaluate"`
}

type ExtractConfig struct {
	OutputPath string `yaml:"output_path" validate:"required"`
	Days       int    `yaml:"days" validate:"gt=0"`
}

type SplitConfig struct {
	TestSize        int    `yaml:"test_size" validate:"gt=0"`
	TrainOutputPath string `yaml:"train_output_path" validate:"required"`
	TestOutputPath  string `yaml:"test_output_path" validate:"required"`
}

// TunerConfig drives the sliding-window grid search.
type TunerConfig struct {
	Estimators []string `yaml:"estimator_name" validate:"required,min=1"`
	CV         CVConfig `yaml:"cv"`
	// Params maps estimator -> parameter -> candidate values.
	Params          map[string]map[string][]float64 `yaml:"params"`
	ModelPath       string                          `yaml:"model_path" validate:"required"`
	TrainingResults string                          `yaml:"training_results" validate:"required"`
}

type CVConfig struct {
	FH           int `yaml:"fh" validate:"gt=0"`
	WindowLength int `yaml:"window_length" validate:"gt=0"`
	StepSize     int `yaml:"step_size" validate:"gt=0"`
}

type EvaluateConfig struct {
	MetricsFile     string `yaml:"metrics_file" validate:"required"`
	PredictionsFile string `yaml:"predictions_file" validate:"required"`
	HistoryDays     int    `yaml:"history_days" validate:"gt=0"`
}

// DashboardConfig configures the read-only query API.
type DashboardConfig struct {
	Listen             string `yaml:"listen" validate:"required"`
	HistoryDays        int    `yaml:"history_days" validate:"gt=0"`
	ForecastPastDays   int    `yaml:"forecast_past_days" validate:"gte=0"`
	ForecastFutureDays int    `yaml:"forecast_future_days" validate:"gte=0"`
}

// ScheduleConfig configures the daily scheduler.
type ScheduleConfig struct {
	// At is the local wall-clock time of the daily run (HH:MM).
	At       string `yaml:"at" validate:"required"`
	Timezone string `yaml:"timezone" validate:"required"`
	// LagDays is subtracted from today to obtain the run date.
	LagDays  int  `yaml:"lag_days" validate:"gte=0"`
	Forecast bool `yaml:"forecast"`
	// ForecastDayOfMonth is the local day of month whose trigger also runs the forecast unit.
	// Forecasts are append-only, so the other days only ingest, prepare and monitor.
	ForecastDayOfMonth int  `yaml:"forecast_day_of_month" validate:"gte=1,lte=28"`
	Monitor            bool `yaml:"monitor"`
}

// ExportConfig configures the parquet archive.
type ExportConfig struct {
	StorageRef    string `yaml:"storage_ref"`
	Bucket        string `yaml:"bucket"`
	OutputBaseDir string `yaml:"output_base_dir"`
	Compression   string `yaml:"compression" validate:"oneof=SNAPPY GZIP UNCOMPRESSED"`
	Days          int    `yaml:"days" validate:"gt=0"`
}

// NewConfig returns a Config holding every default.
func NewConfig() *Config {
	return &Config{
		System:      coreConfig.NewSystemConfig(),
		DatabaseRef: "default",
		WeatherAPI: WeatherAPIConfig{
			URL:        "https://archive-api.open-meteo.com/v1/archive",
			Latitude:   30.052723,
			Longitude:  31.190199,
			Variables:  []string{TemperatureVariable},
			Timezone:   "Africa/Cairo",
			LocationID: 75354428,
			Timeout:    60 * time.Second,
			MinSamples: 24,
		},
		Pipeline: PipelineConfig{
			HourlyRetentionDays:       800,
			DailyRetentionDays:        2000,
			MonitoringRetentionDays:   1000,
			HistoryWindowDays:         400,
			ForecastHorizon:           30,
			MonitoringWindowStartDays: 32,
			MonitoringWindowEndDays:   2,
			MonitoringConcurrency:     4,
		},
		Policies: PoliciesConfig{
			Fetch:     retry.Policy{MaxAttempts: 3, Backoff: 120 * time.Second, Timeout: 60 * time.Second},
			Transform: retry.Policy{MaxAttempts: 2, Backoff: 30 * time.Second, Timeout: 60 * time.Second},
			Store:     retry.Policy{MaxAttempts: 3, Backoff: 60 * time.Second, Timeout: 120 * time.Second},
			Query:     retry.Policy{MaxAttempts: 3, Backoff: 30 * time.Second, Timeout: 60 * time.Second},
			Forecast:  retry.Policy{MaxAttempts: 3, Backoff: 30 * time.Second, Timeout: 30 * time.Second},
			Monitor:   retry.Policy{MaxAttempts: 3, Backoff: 30 * time.Second, Timeout: 120 * time.Second},
		},
		Cache: CacheConfig{Backend: "memory", TTL: 10 * time.Minute},
		Model: ModelConfig{Path: "models/model.json"},
		Train: TrainConfig{
			Extract: ExtractConfig{OutputPath: "data/daily.csv", Days: 699},
			Split:   SplitConfig{TestSize: 30, TrainOutputPath: "data/train.csv", TestOutputPath: "data/test.csv"},
			Tuner: TunerConfig{
				Estimators: []string{"holt"},
				CV:         CVConfig{FH: 30, WindowLength: 365, StepSize: 30},
				Params: map[string]map[string][]float64{
					"ses":  {"alpha": {0.1, 0.3, 0.5, 0.7}},
					"holt": {"alpha": {0.1, 0.3, 0.5}, "beta": {0.01, 0.05, 0.1}, "phi": {0.8, 0.9, 0.98}},
				},
				ModelPath:       "models/model.json",
				TrainingResults: "results/training.json",
			},
			Evaluate: EvaluateConfig{
				MetricsFile:     "results/metrics.json",
				PredictionsFile: "results/predictions.csv",
				HistoryDays:     365,
			},
		},
		Dashboard: DashboardConfig{Listen: ":8080", HistoryDays: 120, ForecastPastDays: 30, ForecastFutureDays: 30},
		Schedule:  ScheduleConfig{At: "06:00", Timezone: "Africa/Cairo", LagDays: 2, Forecast: true, ForecastDayOfMonth: 1, Monitor: true},
		Export:    ExportConfig{StorageRef: "archive", OutputBaseDir: "weatherflow", Compression: "SNAPPY", Days: 1},
		Metrics:   metrics.MetricsConfig{Enabled: true, Exporter: "none", Interval: 30 * time.Second},
		Tracing:   metrics.TracingConfig{Exporter: "none", Insecure: true},
	}
}

// LoadOptions are the inputs of Load.
type LoadOptions struct {
	EnvFilePath string
	Embedded    coreConfig.EmbeddedConfig
	ConfigFile  string
}

// Load builds the configuration from defaults, the embedded YAML, the optional --conf file and the environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := NewConfig()
	err := coreConfig.Load(coreConfig.LoadOptions{
		EnvFilePath: opts.EnvFilePath,
		Embedded:    opts.Embedded,
		ConfigFile:  opts.ConfigFile,
		EnvPrefix:   EnvPrefix,
	}, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the constraints struct tags cannot express.
func (c *Config) Validate() error {
	if !slices.Contains(c.WeatherAPI.Variables, TemperatureVariable) {
		return exception.NewConfigurationError("config", fmt.Sprintf("weather_api.variables must include %s", TemperatureVariable), nil)
	}
	dbs, err := c.DatabaseConfigs()
	if err != nil {
		return err
	}
	if _, ok := dbs[c.DatabaseRef]; !ok {
		return exception.NewConfigurationError("config", fmt.Sprintf("database_ref '%s' has no entry under database", c.DatabaseRef), nil)
	}
	if _, err := c.StorageConfigs(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return exception.NewConfigurationError("config", "invalid schedule.timezone", err)
	}
	if _, err := time.Parse("15:04", c.Schedule.At); err != nil {
		return exception.NewConfigurationError("config", "schedule.at must be HH:MM", err)
	}
	if c.Schedule.ForecastDayOfMonth < 1 || c.Schedule.ForecastDayOfMonth > 28 {
		return exception.NewConfigurationError("config", fmt.Sprintf("schedule.forecast_day_of_month must be between 1 and 28, got %d", c.Schedule.ForecastDayOfMonth), nil)
	}
	return nil
}

// DatabaseConfigs decodes and validates the named database entries.
func (c *Config) DatabaseConfigs() (dbconfig.DatabasesConfig, error) {
	dbs, err := dbconfig.DecodeAll(c.Database)
	if err != nil {
		return nil, exception.NewConfigurationError("config", "invalid database section", err)
	}
	for name, db := range dbs {
		if err := coreConfig.Validate(db); err != nil {
			return nil, exception.NewConfigurationError("config", fmt.Sprintf("invalid database '%s'", name), err)
		}
	}
	return dbs, nil
}

// StorageConfigs decodes the named storage entries.
func (c *Config) StorageConfigs() (storageConfig.DatasourcesConfig, error) {
	ds, err := storageConfig.DecodeAll(c.Storage)
	if err != nil {
		return nil, exception.NewConfigurationError("config", "invalid storage section", err)
	}
	for name, s := range ds {
		if s.Type != "local" && s.Type != "gcs" {
			return nil, exception.NewConfigurationError("config", fmt.Sprintf("storage '%s': unsupported type '%s'", name, s.Type), nil)
		}
	}
	return ds, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

const embeddedYAML = `
database:
  default:
    type: sqlite
    database: ${WFCFG_DATA_DIR}/weather.db
storage:
  archive:
    type: local
    base_dir: /tmp/archive
weather_api:
  api_token: ${API_TOKEN}
`

func TestLoad_LayersEmbeddedFileAndEnvironment(t *testing.T) {
	t.Setenv("WFCFG_DATA_DIR", "/var/lib/weatherflow")
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("WEATHERFLOW_PIPELINE_FORECAST_HORIZON", "14")
	t.Setenv("WEATHERFLOW_POLICIES_FETCH_BACKOFF", "5s")

	confFile := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(confFile, []byte("pipeline:\n  hourly_retention_days: 30\nmodel:\n  reconcile_forecasts: true\n"), 0o644))

	cfg, err := Load(LoadOptions{
		EnvFilePath: filepath.Join(t.TempDir(), "missing.env"),
		Embedded:    []byte(embeddedYAML),
		ConfigFile:  confFile,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.WeatherAPI.APIToken)
	assert.Equal(t, 14, cfg.Pipeline.ForecastHorizon)
	assert.Equal(t, 30, cfg.Pipeline.HourlyRetentionDays)
	assert.Equal(t, 2000, cfg.Pipeline.DailyRetentionDays, "defaults survive")
	assert.True(t, cfg.Model.ReconcileForecasts)
	assert.Equal(t, 5*time.Second, cfg.Policies.Fetch.Backoff)
	assert.Equal(t, 3, cfg.Policies.Fetch.MaxAttempts)

	dbs, err := cfg.DatabaseConfigs()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/weatherflow/weather.db", dbs["default"].Database)

	stores, err := cfg.StorageConfigs()
	require.NoError(t, err)
	assert.Equal(t, "local", stores["archive"].Type)
}

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Database = map[string]any{"default": map[string]any{"type": "sqlite", "database": "weather.db"}}
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := map[string]func(c *Config){
		"no temperature variable": func(c *Config) { c.WeatherAPI.Variables = []string{"relative_humidity_2m"} },
		"unknown database ref":    func(c *Config) { c.DatabaseRef = "analytics" },
		"unsupported db type":     func(c *Config) { c.Database["default"] = map[string]any{"type": "duckdb", "database": "x"} },
		"unsupported storage":     func(c *Config) { c.Storage = map[string]any{"s3": map[string]any{"type": "s3"}} },
		"bad schedule time":       func(c *Config) { c.Schedule.At = "6am" },
		"bad schedule timezone":   func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
		"forecast day past 28th":  func(c *Config) { c.Schedule.ForecastDayOfMonth = 31 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), exception.ErrConfiguration)
		})
	}
}

func TestLoad_StructValidationFails(t *testing.T) {
	t.Setenv("WEATHERFLOW_CACHE_BACKEND", "memcached")
	_, err := Load(LoadOptions{Embedded: []byte(embeddedYAML)})
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestParseRunDate(t *testing.T) {
	now := time.Date(2024, 1, 12, 15, 30, 0, 0, time.FixedZone("EET", 2*3600))

	d, err := ParseRunDate("", now, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseRunDate("2023-12-31", now, 2)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", d.Format(time.DateOnly))

	_, err = ParseRunDate("31/12/2023", now, 2)
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

type testPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	Backoff     time.Duration `yaml:"backoff"`
}

type testDatabase struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type testConfig struct {
	System    SystemConfig            `yaml:"system"`
	Token     string                  `yaml:"token"`
	Variables []string                `yaml:"variables"`
	Fetch     testPolicy              `yaml:"fetch"`
	Databases map[string]testDatabase `yaml:"database"`
}

func defaults() *testConfig {
	return &testConfig{
		System:    NewSystemConfig(),
		Variables: []string{"temperature_2m"},
		Fetch:     testPolicy{MaxAttempts: 3, Backoff: 120 * time.Second},
	}
}

const embedded = `
system:
  logging:
    level: DEBUG
token: ${LOADER_TEST_TOKEN}
fetch:
  backoff: 30s
database:
  default:
    host: localhost
    port: 5432
`

func TestLoad_LayersSources(t *testing.T) {
	t.Setenv("LOADER_TEST_TOKEN", "secret")
	dir := t.TempDir()
	confPath := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(confPath, []byte("fetch:\n  max_attempts: 5\n"), 0o600))

	cfg := defaults()
	err := Load(LoadOptions{
		EnvFilePath: filepath.Join(dir, "missing.env"),
		Embedded:    EmbeddedConfig(embedded),
		ConfigFile:  confPath,
		EnvPrefix:   "WFLAYER_",
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.System.Logging.Level)
	assert.Equal(t, "text", cfg.System.Logging.Format, "defaults survive YAML decoding")
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Backoff)
	assert.Equal(t, []string{"temperature_2m"}, cfg.Variables)
	assert.Equal(t, testDatabase{Host: "localhost", Port: 5432}, cfg.Databases["default"])
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("WFTEST_FETCH_BACKOFF", "2m")
	t.Setenv("WFTEST_VARIABLES", "temperature_2m, relative_humidity_2m")
	t.Setenv("WFTEST_DATABASE_DEFAULT_PORT", "6543")
	t.Setenv("WFTEST_SYSTEM_LOGGING_LEVEL", "WARN")

	cfg := defaults()
	err := Load(LoadOptions{
		EnvFilePath: filepath.Join(t.TempDir(), "missing.env"),
		Embedded:    EmbeddedConfig(embedded),
		EnvPrefix:   "WFTEST_",
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Fetch.Backoff)
	assert.Equal(t, []string{"temperature_2m", "relative_humidity_2m"}, cfg.Variables)
	assert.Equal(t, "localhost", cfg.Databases["default"].Host)
	assert.Equal(t, 6543, cfg.Databases["default"].Port)
	assert.Equal(t, "WARN", cfg.System.Logging.Level)
}

func TestLoad_ValidationFailureIsConfigurationError(t *testing.T) {
	cfg := defaults()
	err := Load(LoadOptions{
		EnvFilePath: filepath.Join(t.TempDir(), "missing.env"),
		Embedded:    EmbeddedConfig("fetch:\n  max_attempts: 0\n"),
		EnvPrefix:   "WFINVALID_",
	}, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestLoad_RejectsBadInput(t *testing.T) {
	var notStruct int
	assert.ErrorIs(t, Load(LoadOptions{}, &notStruct), exception.ErrConfiguration)

	err := Load(LoadOptions{
		EnvFilePath: filepath.Join(t.TempDir(), "missing.env"),
		ConfigFile:  filepath.Join(t.TempDir(), "nope.yaml"),
	}, defaults())
	assert.ErrorIs(t, err, exception.ErrConfiguration)

	err = Load(LoadOptions{
		EnvFilePath: filepath.Join(t.TempDir(), "missing.env"),
		Embedded:    EmbeddedConfig("fetch: [unclosed"),
	}, defaults())
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

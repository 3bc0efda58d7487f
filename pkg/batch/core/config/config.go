// Package config provides the generic configuration loader shared by every command, plus the
// configuration sections common to all applications built on the batch framework.
package config

// EmbeddedConfig holds the content of the default configuration file compiled into the binary.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL debug info warn error fatal"`
	// Format is either "text" or "json".
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone used to derive default run dates (e.g., "UTC", "Africa/Cairo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// NewSystemConfig returns a SystemConfig with default values.
func NewSystemConfig() SystemConfig {
	return SystemConfig{
		Timezone: "UTC",
		Logging:  LoggingConfig{Level: string(LogLevelInfo), Format: "text"},
	}
}

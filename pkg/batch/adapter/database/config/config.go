package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"required,oneof=sqlite postgres mysql"` // Database type: sqlite, postgres or mysql.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database" validate:"required"` // Database name, or the file path for SQLite.
	User     string `yaml:"user"`
	Password string `yaml:"password"` // Credential token embedded in the connection string.
	Schema   string `yaml:"schema,omitempty"` // Logical namespace holding the pipeline tables (PostgreSQL search_path).
	Sslmode  string `yaml:"sslmode"`
	// LogLevel is the GORM statement log level: SILENT, ERROR, WARN or INFO.
	LogLevel string     `yaml:"log_level"`
	Pool     PoolConfig `yaml:"pool"`
}

// DatabasesConfig holds named database configurations.
type DatabasesConfig map[string]DatabaseConfig

// Decode converts a loosely typed map (as produced by YAML into map[string]any) into a DatabaseConfig.
// Numeric strings are accepted for numeric fields so environment-expanded values decode cleanly.
func Decode(raw any) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("failed to decode database config: %w", err)
	}
	return cfg, nil
}

// DecodeAll decodes every named entry of raw.
func DecodeAll(raw map[string]any) (DatabasesConfig, error) {
	out := make(DatabasesConfig, len(raw))
	for name, v := range raw {
		cfg, err := Decode(v)
		if err != nil {
			return nil, fmt.Errorf("database '%s': %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}

package metrics

import "time"

// MetricsConfig controls metric recording.
type MetricsConfig struct {
	// Enabled turns on the Prometheus recorder.
	Enabled bool `yaml:"enabled"`
	// Exporter additionally pushes metrics through OTLP: "grpc", "http" or "none".
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=grpc http none"`
	// Endpoint is the OTLP collector address (host:port).
	Endpoint string `yaml:"endpoint"`
	// Interval is the OTLP export period.
	Interval time.Duration `yaml:"interval"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "grpc", "http" or "none".
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=grpc http none"`
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
}

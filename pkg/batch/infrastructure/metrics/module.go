package metrics

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Telemetry bundles the recorder and tracer chosen by configuration.
type Telemetry struct {
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	// Prometheus is nil when metrics are disabled.
	Prometheus *PrometheusRecorder

	shutdown []func(context.Context) error
}

// NewTelemetry wires Prometheus, OTLP metrics and OTLP tracing as configured.
// Disabled parts fall back to no-op implementations.
func NewTelemetry(ctx context.Context, serviceName string, mcfg MetricsConfig, tcfg TracingConfig) (*Telemetry, error) {
	t := &Telemetry{Tracer: metrics.NewNoOpTracer()}
	var recorders []metrics.MetricRecorder

	if mcfg.Enabled {
		t.Prometheus = NewPrometheusRecorder()
		recorders = append(recorders, t.Prometheus)
		if mcfg.Exporter != "" && mcfg.Exporter != "none" {
			otelRecorder, err := NewOTLPRecorder(ctx, serviceName, mcfg, tcfg.Insecure)
			if err != nil {
				return nil, err
			}
			recorders = append(recorders, otelRecorder)
			t.shutdown = append(t.shutdown, otelRecorder.Shutdown)
		}
	}
	switch len(recorders) {
	case 0:
		t.Recorder = metrics.NewNoOpMetricRecorder()
	case 1:
		t.Recorder = recorders[0]
	default:
		t.Recorder = metrics.NewCompositeRecorder(recorders...)
	}

	if tcfg.Enabled && tcfg.Exporter != "" && tcfg.Exporter != "none" {
		tracer, err := NewOTLPTracer(ctx, serviceName, tcfg)
		if err != nil {
			return nil, err
		}
		t.Tracer = tracer
		t.shutdown = append(t.shutdown, tracer.Shutdown)
	}
	return t, nil
}

// Shutdown flushes every exporter.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// TelemetryParams are the Fx inputs of NewTelemetryProvider.
type TelemetryParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	ServiceName string `name:"serviceName"`
	Metrics     MetricsConfig
	Tracing     TracingConfig
}

// NewTelemetryProvider builds Telemetry and flushes it when the application stops.
func NewTelemetryProvider(p TelemetryParams) (*Telemetry, error) {
	t, err := NewTelemetry(context.Background(), p.ServiceName, p.Metrics, p.Tracing)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := t.Shutdown(ctx); err != nil {
				logger.Warnf("Telemetry shutdown failed: %v", err)
			}
			return nil
		},
	})
	return t, nil
}

// Module provides Telemetry and exposes its recorder and tracer as the core interfaces.
var Module = fx.Options(
	fx.Provide(NewTelemetryProvider),
	fx.Provide(func(t *Telemetry) metrics.MetricRecorder { return t.Recorder }),
	fx.Provide(func(t *Telemetry) metrics.Tracer { return t.Tracer }),
)

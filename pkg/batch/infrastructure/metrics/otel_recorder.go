package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// OTelRecorder records unit metrics through the OpenTelemetry metric API.
type OTelRecorder struct {
	provider *sdkmetric.MeterProvider

	unitRuns      otelmetric.Int64Counter
	unitDuration  otelmetric.Float64Histogram
	stageDuration otelmetric.Float64Histogram
	rowsWritten   otelmetric.Int64Counter
	retries       otelmetric.Int64Counter
}

// NewOTelRecorder creates the instruments on provider.
func NewOTelRecorder(provider *sdkmetric.MeterProvider) (*OTelRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelRecorder{provider: provider}

	var err error
	if r.unitRuns, err = meter.Int64Counter("weatherflow.unit.runs",
		otelmetric.WithDescription("Finished pipeline unit executions.")); err != nil {
		return nil, err
	}
	if r.unitDuration, err = meter.Float64Histogram("weatherflow.unit.duration",
		otelmetric.WithDescription("Duration of pipeline unit executions."), otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stageDuration, err = meter.Float64Histogram("weatherflow.stage.duration",
		otelmetric.WithDescription("Duration of unit stages."), otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.rowsWritten, err = meter.Int64Counter("weatherflow.rows.written",
		otelmetric.WithDescription("Rows inserted per unit and table.")); err != nil {
		return nil, err
	}
	if r.retries, err = meter.Int64Counter("weatherflow.stage.retries",
		otelmetric.WithDescription("Retried stage calls.")); err != nil {
		return nil, err
	}
	return r, nil
}

// NewOTLPRecorder builds a MeterProvider with a periodic OTLP reader.
func NewOTLPRecorder(ctx context.Context, serviceName string, cfg MetricsConfig, insecure bool) (*OTelRecorder, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch cfg.Exporter {
	case "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported metric exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metric exporter: %w", cfg.Exporter, err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(newResource(serviceName)),
	)
	logger.Infof("Metrics: exporting via OTLP/%s to %s every %s.", cfg.Exporter, cfg.Endpoint, interval)
	return NewOTelRecorder(provider)
}

func (r *OTelRecorder) RecordUnitStart(ctx context.Context, execution *model.UnitExecution) {}

func (r *OTelRecorder) RecordUnitEnd(ctx context.Context, execution *model.UnitExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("unit", execution.UnitName),
		attribute.String("status", execution.Status.String()),
		attribute.String("exit_status", execution.ExitStatus.String()),
	)
	r.unitRuns.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.unitDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelRecorder) RecordStageDuration(ctx context.Context, unitName, stage string, duration time.Duration, err error) {
	r.stageDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(
		attribute.String("unit", unitName),
		attribute.String("stage", stage),
		attribute.String("outcome", outcome(err)),
	))
}

func (r *OTelRecorder) RecordRowsWritten(ctx context.Context, unitName, table string, count int64) {
	r.rowsWritten.Add(ctx, count, otelmetric.WithAttributes(
		attribute.String("unit", unitName),
		attribute.String("table", table),
	))
}

func (r *OTelRecorder) RecordRetry(ctx context.Context, unitName, stage string, reason string) {
	r.retries.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("unit", unitName),
		attribute.String("stage", stage),
		attribute.String("reason", reason),
	))
}

// Shutdown flushes and stops the meter provider.
func (r *OTelRecorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)

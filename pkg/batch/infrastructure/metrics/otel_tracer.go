package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/weatherflow"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOpenTelemetryTracer wraps an existing TracerProvider.
func NewOpenTelemetryTracer(provider *sdktrace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{provider: provider, tracer: provider.Tracer(instrumentationName)}
}

// NewOTLPTracer builds a batching TracerProvider exporting over OTLP grpc or http.
func NewOTLPTracer(ctx context.Context, serviceName string, cfg TracingConfig) (*OpenTelemetryTracer, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", cfg.Exporter, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(serviceName)),
	)
	logger.Infof("Tracing: exporting spans via OTLP/%s to %s.", cfg.Exporter, cfg.Endpoint)
	return NewOpenTelemetryTracer(provider), nil
}

// StartUnitSpan starts a span for a UnitExecution.
func (t *OpenTelemetryTracer) StartUnitSpan(ctx context.Context, execution *model.UnitExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "unit."+execution.UnitName,
		trace.WithAttributes(
			attribute.String("unit.id", execution.ID),
			attribute.String("unit.name", execution.UnitName),
			attribute.String("unit.run_date", execution.RunDate.Format(time.DateOnly)),
		))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("unit.status", execution.Status.String()),
			attribute.String("unit.exit_status", execution.ExitStatus.String()),
			attribute.Int64("unit.rows_written", execution.RowsWritten),
		)
		if execution.Status == model.UnitStatusFailed {
			span.SetStatus(codes.Error, execution.ExitMessage)
		}
		span.End()
	}
}

// StartStageSpan starts a child span for a unit stage.
func (t *OpenTelemetryTracer) StartStageSpan(ctx context.Context, unitName, stage string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "stage."+stage,
		trace.WithAttributes(attribute.String("unit.name", unitName), attribute.String("stage", stage)))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes pending spans.
func (t *OpenTelemetryTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func newResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)

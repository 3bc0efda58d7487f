package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
)

func finishedExecution(t *testing.T) *model.UnitExecution {
	t.Helper()
	ue := model.NewUnitExecution("ingestion", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, ue.TransitionTo(model.UnitStatusFetching))
	require.NoError(t, ue.TransitionTo(model.UnitStatusInserting))
	ue.MarkDone(false)
	return ue
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := context.Background()
	ue := finishedExecution(t)

	r.RecordUnitStart(ctx, ue)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.unitInFlight.WithLabelValues("ingestion")))
	r.RecordUnitEnd(ctx, ue)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.unitInFlight.WithLabelValues("ingestion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.unitStatusCounter.WithLabelValues("ingestion", "DONE", "COMPLETED")))

	r.RecordRowsWritten(ctx, "ingestion", "hourly_weather_data", 24)
	r.RecordRowsWritten(ctx, "ingestion", "hourly_weather_data", 24)
	assert.Equal(t, 48.0, testutil.ToFloat64(r.rowsWrittenCounter.WithLabelValues("ingestion", "hourly_weather_data")))

	r.RecordRetry(ctx, "ingestion", "fetch", "DataIncompleteError")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retryCounter.WithLabelValues("ingestion", "fetch", "DataIncompleteError")))

	r.RecordStageDuration(ctx, "ingestion", "fetch", time.Second, errors.New("x"))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDurationSeconds))
}

func TestOTelRecorder_CollectsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOTelRecorder(provider)
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordUnitEnd(ctx, finishedExecution(t))
	r.RecordRowsWritten(ctx, "ingestion", "hourly_weather_data", 24)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["weatherflow.unit.runs"])
	assert.Equal(t, int64(24), sums["weatherflow.rows.written"])
}

func TestOpenTelemetryTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewOpenTelemetryTracer(provider)

	ue := model.NewUnitExecution("ingestion", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	ctx, endUnit := tracer.StartUnitSpan(context.Background(), ue)
	stageCtx, endStage := tracer.StartStageSpan(ctx, "ingestion", "fetch")
	tracer.RecordError(stageCtx, "reader", errors.New("status-code: 503"))
	endStage()
	ue.MarkFailed(errors.New("status-code: 503"))
	endUnit()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "stage.fetch", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "unit.ingestion", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestNewTelemetry_DisabledFallsBackToNoop(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), "weatherflow", MetricsConfig{}, TracingConfig{})
	require.NoError(t, err)
	assert.Nil(t, tel.Prometheus)
	assert.IsType(t, &coremetrics.NoOpMetricRecorder{}, tel.Recorder)
	assert.IsType(t, &coremetrics.NoOpTracer{}, tel.Tracer)
	assert.NoError(t, tel.Shutdown(context.Background()))

	tel, err = NewTelemetry(context.Background(), "weatherflow", MetricsConfig{Enabled: true, Exporter: "none"}, TracingConfig{})
	require.NoError(t, err)
	assert.Same(t, tel.Prometheus, tel.Recorder)
}

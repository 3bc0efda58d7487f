package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// It owns its registry so tests and the dashboard /metrics endpoint see only these collectors.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	unitDurationSeconds  *prometheus.HistogramVec
	unitStatusCounter    *prometheus.CounterVec
	unitInFlight         *prometheus.GaugeVec
	stageDurationSeconds *prometheus.HistogramVec
	rowsWrittenCounter   *prometheus.CounterVec
	retryCounter         *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		unitDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weatherflow_unit_duration_seconds",
			Help:    "Duration of pipeline unit executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"unit", "status", "exit_status"}),
		unitStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherflow_unit_runs_total",
			Help: "Total number of finished pipeline unit executions by status.",
		}, []string{"unit", "status", "exit_status"}),
		unitInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weatherflow_unit_in_flight",
			Help: "Pipeline units currently running.",
		}, []string{"unit"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weatherflow_stage_duration_seconds",
			Help:    "Duration of individual unit stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"unit", "stage", "outcome"}),
		rowsWrittenCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherflow_rows_written_total",
			Help: "Rows inserted per unit and table.",
		}, []string{"unit", "table"}),
		retryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherflow_stage_retries_total",
			Help: "Retried stage calls by unit, stage and reason.",
		}, []string{"unit", "stage", "reason"}),
	}

	registry.MustRegister(
		r.unitDurationSeconds,
		r.unitStatusCounter,
		r.unitInFlight,
		r.stageDurationSeconds,
		r.rowsWrittenCounter,
		r.retryCounter,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordUnitStart records the start of a UnitExecution.
func (r *PrometheusRecorder) RecordUnitStart(ctx context.Context, execution *model.UnitExecution) {
	r.unitInFlight.WithLabelValues(execution.UnitName).Inc()
	logger.Debugf("Metrics: Unit '%s' started.", execution.UnitName)
}

// RecordUnitEnd records the end of a UnitExecution.
func (r *PrometheusRecorder) RecordUnitEnd(ctx context.Context, execution *model.UnitExecution) {
	r.unitInFlight.WithLabelValues(execution.UnitName).Dec()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	labels := []string{execution.UnitName, execution.Status.String(), execution.ExitStatus.String()}
	r.unitDurationSeconds.WithLabelValues(labels...).Observe(duration)
	r.unitStatusCounter.WithLabelValues(labels...).Inc()

	logger.Debugf("Metrics: Unit '%s' ended. Duration: %.3fs", execution.UnitName, duration)
}

// RecordStageDuration records one stage call.
func (r *PrometheusRecorder) RecordStageDuration(ctx context.Context, unitName, stage string, duration time.Duration, err error) {
	r.stageDurationSeconds.WithLabelValues(unitName, stage, outcome(err)).Observe(duration.Seconds())
}

// RecordRowsWritten records inserted rows.
func (r *PrometheusRecorder) RecordRowsWritten(ctx context.Context, unitName, table string, count int64) {
	r.rowsWrittenCounter.WithLabelValues(unitName, table).Add(float64(count))
}

// RecordRetry records a retried stage call.
func (r *PrometheusRecorder) RecordRetry(ctx context.Context, unitName, stage string, reason string) {
	r.retryCounter.WithLabelValues(unitName, stage, reason).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)

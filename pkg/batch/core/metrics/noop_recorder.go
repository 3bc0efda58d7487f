package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordUnitStart(ctx context.Context, execution *model.UnitExecution) {}
func (r *NoOpMetricRecorder) RecordUnitEnd(ctx context.Context, execution *model.UnitExecution)   {}
func (r *NoOpMetricRecorder) RecordStageDuration(ctx context.Context, unitName, stage string, duration time.Duration, err error) {
}
func (r *NoOpMetricRecorder) RecordRowsWritten(ctx context.Context, unitName, table string, count int64) {
}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, unitName, stage string, reason string) {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartUnitSpan(ctx context.Context, execution *model.UnitExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStageSpan(ctx context.Context, unitName, stage string) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

var _ Tracer = (*NoOpTracer)(nil)

// CompositeRecorder fans every call out to several recorders.
type CompositeRecorder struct {
	recorders []MetricRecorder
}

// NewCompositeRecorder combines recorders. Nil entries are dropped.
func NewCompositeRecorder(recorders ...MetricRecorder) *CompositeRecorder {
	c := &CompositeRecorder{}
	for _, r := range recorders {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
	return c
}

func (c *CompositeRecorder) RecordUnitStart(ctx context.Context, execution *model.UnitExecution) {
	for _, r := range c.recorders {
		r.RecordUnitStart(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordUnitEnd(ctx context.Context, execution *model.UnitExecution) {
	for _, r := range c.recorders {
		r.RecordUnitEnd(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordStageDuration(ctx context.Context, unitName, stage string, duration time.Duration, err error) {
	for _, r := range c.recorders {
		r.RecordStageDuration(ctx, unitName, stage, duration, err)
	}
}

func (c *CompositeRecorder) RecordRowsWritten(ctx context.Context, unitName, table string, count int64) {
	for _, r := range c.recorders {
		r.RecordRowsWritten(ctx, unitName, table, count)
	}
}

func (c *CompositeRecorder) RecordRetry(ctx context.Context, unitName, stage string, reason string) {
	for _, r := range c.recorders {
		r.RecordRetry(ctx, unitName, stage, reason)
	}
}

var _ MetricRecorder = (*CompositeRecorder)(nil)

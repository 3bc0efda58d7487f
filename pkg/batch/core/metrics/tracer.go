package metrics

import (
	"context"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of units and their stages.
type Tracer interface {
	// StartUnitSpan starts a span for a UnitExecution.
	// The returned function ends the span and should be deferred.
	StartUnitSpan(ctx context.Context, execution *model.UnitExecution) (context.Context, func())

	// StartStageSpan starts a child span for one stage of a unit.
	StartStageSpan(ctx context.Context, unitName, stage string) (context.Context, func())

	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)
}

package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
)

// MetricRecorder abstracts the metrics backend used by the unit runner.
type MetricRecorder interface {
	// RecordUnitStart records the start of a UnitExecution.
	RecordUnitStart(ctx context.Context, execution *model.UnitExecution)
	// RecordUnitEnd records the end of a UnitExecution, including its status and duration.
	RecordUnitEnd(ctx context.Context, execution *model.UnitExecution)
	// RecordStageDuration records how long a single stage (fetch, reconcile, insert, ...) took.
	RecordStageDuration(ctx context.Context, unitName, stage string, duration time.Duration, err error)
	// RecordRowsWritten records rows inserted into table by a unit.
	RecordRowsWritten(ctx context.Context, unitName, table string, count int64)
	// RecordRetry records a retried stage call.
	RecordRetry(ctx context.Context, unitName, stage string, reason string)
}

package job

import (
	"context"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// DailyJob runs ingestion then daily preparation for the same run date.
type DailyJob struct {
	Ingestion *IngestionUnit
	DailyPrep *DailyPrepUnit
}

func NewDailyJob(ingestion *IngestionUnit, prep *DailyPrepUnit) *DailyJob {
	return &DailyJob{Ingestion: ingestion, DailyPrep: prep}
}

// Run fails with a daily-prep failure when the aggregation is not ready, so callers never forecast
// or monitor on incomplete history. Hourly rows written by ingestion stay committed either way.
func (j *DailyJob) Run(ctx context.Context, runDate time.Time) error {
	if _, err := j.Ingestion.Run(ctx, runDate); err != nil {
		return err
	}
	ready, err := j.DailyPrep.Run(ctx, runDate)
	if err != nil {
		return err
	}
	if !ready {
		return exception.NewDailyPrepFailure(day(runDate))
	}
	logger.Infof("Daily job %s completed.", day(runDate))
	return nil
}

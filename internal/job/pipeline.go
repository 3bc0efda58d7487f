package job

import (
	"context"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Pipeline is the full daily run: the daily job, then forecast and monitoring when enabled.
type Pipeline struct {
	Daily      *DailyJob
	Forecast   *ForecastUnit
	Monitoring *MonitoringUnit
}

func NewPipeline(daily *DailyJob, forecast *ForecastUnit, monitoring *MonitoringUnit) *Pipeline {
	return &Pipeline{Daily: daily, Forecast: forecast, Monitoring: monitoring}
}

// Run stops at the first failing step. Forecast and monitoring never run after a failed daily job.
func (p *Pipeline) Run(ctx context.Context, runDate time.Time, forecast, monitor bool) error {
	if err := p.Daily.Run(ctx, runDate); err != nil {
		return err
	}
	if forecast {
		if _, err := p.Forecast.Run(ctx, runDate); err != nil {
			return err
		}
	}
	if monitor {
		if _, err := p.Monitoring.Run(ctx, runDate); err != nil {
			return err
		}
	}
	logger.Infof("Pipeline %s completed (forecast: %t, monitoring: %t).", day(runDate), forecast, monitor)
	return nil
}

// Package processor reshapes raw API batches into table rows.
package processor

import (
	"fmt"
	"time"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

const ModuleHourlyTransform = "HourlyTransformProcessor"

// apiTimeLayout matches the hourly "time" entries of the archive API.
const apiTimeLayout = "2006-01-02T15:04"

// HourlyTransformProcessor turns a RawBatch into HourlyReading rows for one location.
type HourlyTransformProcessor struct {
	locationID int64
	variable   string
}

// NewHourlyTransformProcessor creates a processor that reads the temperature series.
func NewHourlyTransformProcessor(locationID int64) *HourlyTransformProcessor {
	return &HourlyTransformProcessor{locationID: locationID, variable: config.TemperatureVariable}
}

// Transform returns one reading per hourly timestamp, in API order. Timestamps keep the local wall clock
// reported by the API and are stored as UTC; the batch timezone is copied to every row.
func (p *HourlyTransformProcessor) Transform(batch *model.RawBatch) ([]entity.HourlyReading, error) {
	if batch == nil {
		return nil, exception.NewBatchErrorf(ModuleHourlyTransform, "nil batch")
	}
	series, ok := batch.Hourly.Series(p.variable)
	if !ok {
		return nil, exception.NewBatchErrorf(ModuleHourlyTransform, "hourly series %q is missing", p.variable)
	}
	if len(series) != len(batch.Hourly.Time) {
		return nil, exception.NewBatchErrorf(ModuleHourlyTransform, "hourly series %q has %d samples for %d timestamps", p.variable, len(series), len(batch.Hourly.Time))
	}

	readings := make([]entity.HourlyReading, 0, len(series))
	for i, raw := range batch.Hourly.Time {
		ts, err := time.ParseInLocation(apiTimeLayout, raw, time.UTC)
		if err != nil {
			return nil, exception.NewBatchError(ModuleHourlyTransform, fmt.Sprintf("failed to parse time: %s", raw), err, false, false)
		}
		if series[i] == nil {
			return nil, exception.NewBatchErrorf(ModuleHourlyTransform, "null %s at %s", p.variable, raw)
		}
		readings = append(readings, entity.HourlyReading{
			LocationID:       p.locationID,
			ReadingTimestamp: ts,
			Temperature:      *series[i],
			Timezone:         batch.Timezone,
		})
	}
	return readings, nil
}

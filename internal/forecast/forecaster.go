package forecast

import (
	"sort"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

// Forecast predicts horizon days after the last history date of every location in history.
// History is grouped by location and ordered by date before it reaches the model.
func Forecast(m Model, history []entity.DailyReading, horizon int) ([]entity.ForecastRecord, error) {
	if m == nil || !m.IsFitted() {
		return nil, exception.NewModelNotFittedError(moduleForecast, "model has not been fitted; train it before forecasting")
	}

	byLocation := make(map[int64][]entity.DailyReading)
	var locations []int64
	for _, row := range history {
		if _, seen := byLocation[row.LocationID]; !seen {
			locations = append(locations, row.LocationID)
		}
		byLocation[row.LocationID] = append(byLocation[row.LocationID], row)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	records := make([]entity.ForecastRecord, 0, len(locations)*horizon)
	for _, loc := range locations {
		rows := byLocation[loc]
		sort.Slice(rows, func(i, j int) bool { return rows[i].ReadingDate.Before(rows[j].ReadingDate) })
		series := make([]float64, len(rows))
		for i, r := range rows {
			series[i] = r.Temperature
		}

		predicted, err := m.Predict(series, horizon)
		if err != nil {
			return nil, err
		}
		last := entity.Day(rows[len(rows)-1].ReadingDate)
		for h, v := range predicted {
			records = append(records, entity.ForecastRecord{
				LocationID:            loc,
				ReadingDate:           last.AddDate(0, 0, h+1),
				ForecastedTemperature: v,
			})
		}
	}
	return records, nil
}

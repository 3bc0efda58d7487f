package train

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Extract writes the daily average, maximum and minimum temperature of the last days days up to runDate
// to out, one row per date in ascending order.
func Extract(ctx context.Context, repo *repository.WeatherRepository, session *gorm.DB, runDate time.Time, days int, out string) (int, error) {
	to := entity.Day(runDate)
	summaries, err := repo.DailySummaries(ctx, session, to.AddDate(0, 0, -days), to)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.ReadingDate.Format(time.DateOnly),
			formatFloat(s.Temperature),
			formatFloat(s.MaximumTemperature),
			formatFloat(s.MinimumTemperature),
		})
	}
	if err := writeCSV(out, []string{"reading_date", "temperature", "maximum_temperature", "minimum_temperature"}, rows); err != nil {
		return 0, err
	}
	logger.Infof("Extracted %d daily rows to %s.", len(rows), out)
	return len(rows), nil
}

// Split keeps the last testSize rows of in as the test set and everything before as the training set.
func Split(in string, testSize int, trainOut, testOut string) error {
	obs, err := ReadSeries(in)
	if err != nil {
		return err
	}
	if testSize <= 0 || testSize >= len(obs) {
		return exception.NewBatchErrorf(moduleTrain, "test size %d must be between 1 and %d", testSize, len(obs)-1)
	}
	cut := len(obs) - testSize
	if err := WriteSeries(trainOut, obs[:cut]); err != nil {
		return err
	}
	if err := WriteSeries(testOut, obs[cut:]); err != nil {
		return err
	}
	logger.Infof("Split %s into %d training and %d test rows.", in, cut, testSize)
	return nil
}

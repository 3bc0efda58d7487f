package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/internal/schema"
	testutil "github.com/tigerroll/weatherflow/pkg/batch/test"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setup(t *testing.T) (*repository.WeatherRepository, *gorm.DB) {
	t.Helper()
	conn := testutil.NewSQLiteConnection(t, "weather")
	require.NoError(t, schema.Migrate(context.Background(), conn))
	return repository.NewWeatherRepository(), conn.DB()
}

func hours(location int64, d time.Time, temps ...float64) []entity.HourlyReading {
	rows := make([]entity.HourlyReading, len(temps))
	for i, v := range temps {
		rows[i] = entity.HourlyReading{LocationID: location, ReadingTimestamp: d.Add(time.Duration(i) * time.Hour), Temperature: v, Timezone: "Africa/Cairo"}
	}
	return rows
}

func TestAggregateDaily_MeanPerLocation(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	d := day(2024, 1, 10)

	_, err := repo.Hourly.Write(ctx, db, hours(1, d, 8, 10, 12))
	require.NoError(t, err)
	_, err = repo.Hourly.Write(ctx, db, hours(2, d, 20, 22))
	require.NoError(t, err)
	_, err = repo.Hourly.Write(ctx, db, hours(1, d.AddDate(0, 0, 1), 100))
	require.NoError(t, err)

	daily, err := repo.AggregateDaily(ctx, db, d)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, int64(1), daily[0].LocationID)
	assert.InDelta(t, 10.0, daily[0].Temperature, 1e-9)
	assert.True(t, daily[0].ReadingDate.Equal(d))
	assert.InDelta(t, 21.0, daily[1].Temperature, 1e-9)
}

func TestAggregateDaily_EmptyWhenNoHourlyRows(t *testing.T) {
	repo, db := setup(t)
	daily, err := repo.AggregateDaily(context.Background(), db, day(2024, 1, 10))
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestReconcileInsert_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	d := day(2024, 1, 10)

	first := []entity.DailyReading{{LocationID: 1, ReadingDate: d, Temperature: 9}}
	second := []entity.DailyReading{{LocationID: 1, ReadingDate: d, Temperature: 10}}
	for _, rows := range [][]entity.DailyReading{first, second} {
		_, err := repo.Daily.Reconcile(ctx, db, d)
		require.NoError(t, err)
		_, err = repo.Daily.Write(ctx, db, rows)
		require.NoError(t, err)
	}

	got, err := repo.DailyRange(ctx, db, d, d)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Temperature)
}

func TestPrune_RetentionBound(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	runDate := day(2024, 1, 10)
	threshold := runDate.AddDate(0, 0, -2000)

	_, err := repo.Daily.Write(ctx, db, []entity.DailyReading{
		{LocationID: 1, ReadingDate: threshold.AddDate(0, 0, -1)},
		{LocationID: 1, ReadingDate: threshold},
		{LocationID: 1, ReadingDate: threshold.AddDate(0, 0, 1)},
		{LocationID: 1, ReadingDate: runDate},
	})
	require.NoError(t, err)

	_, err = repo.Daily.Prune(ctx, db, runDate, 2000)
	require.NoError(t, err)

	left, err := repo.DailyRange(ctx, db, threshold.AddDate(0, 0, -10), runDate)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.True(t, left[0].ReadingDate.Equal(threshold.AddDate(0, 0, 1)))
}

func TestLoadHistory_Window(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	d := day(2024, 1, 10)

	_, err := repo.Daily.Write(ctx, db, []entity.DailyReading{
		{LocationID: 1, ReadingDate: d.AddDate(0, 0, -401), Temperature: 1},
		{LocationID: 1, ReadingDate: d.AddDate(0, 0, -400), Temperature: 2},
		{LocationID: 1, ReadingDate: d, Temperature: 3},
		{LocationID: 1, ReadingDate: d.AddDate(0, 0, 1), Temperature: 4},
	})
	require.NoError(t, err)

	history, err := repo.LoadHistory(ctx, db, d, 400)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2.0, history[0].Temperature)
	assert.Equal(t, 3.0, history[1].Temperature)
}

func TestLoadJoined_InnerJoinOnLocationAndDate(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	d := day(2024, 2, 15)
	from, to := d.AddDate(0, 0, -32), d.AddDate(0, 0, -2)

	_, err := repo.Daily.Write(ctx, db, []entity.DailyReading{
		{LocationID: 1, ReadingDate: from, Temperature: 10},
		{LocationID: 1, ReadingDate: to, Temperature: 12},
		{LocationID: 2, ReadingDate: to, Temperature: 30},
	})
	require.NoError(t, err)
	_, err = repo.Forecast.Write(ctx, db, []entity.ForecastRecord{
		{LocationID: 1, ReadingDate: from, ForecastedTemperature: 11},
		{LocationID: 1, ReadingDate: to, ForecastedTemperature: 13},
		{LocationID: 1, ReadingDate: d, ForecastedTemperature: 99},
		{LocationID: 3, ReadingDate: to, ForecastedTemperature: 5},
	})
	require.NoError(t, err)

	pairs, err := repo.LoadJoined(ctx, db, from, to)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, int64(1), pairs[0].LocationID)
	assert.Equal(t, 11.0, pairs[0].ForecastedTemperature)
	assert.Equal(t, 10.0, pairs[0].Temperature)
	assert.True(t, pairs[1].ReadingDate.Equal(to))
}

func TestMonitoring_ReconcileLocationKeepsOtherLocations(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	d := day(2024, 2, 15)

	_, err := repo.Monitoring.Write(ctx, db, []entity.MonitoringRecord{
		{LocationID: 1, MonitoringDate: d, RMSE: 1, OrderStatisticMediansX: []float64{-1, 0, 1}},
		{LocationID: 2, MonitoringDate: d, RMSE: 2},
	})
	require.NoError(t, err)

	_, err = repo.Monitoring.ReconcileLocation(ctx, db, d, 1)
	require.NoError(t, err)
	_, err = repo.Monitoring.Write(ctx, db, []entity.MonitoringRecord{{LocationID: 1, MonitoringDate: d, RMSE: 3, OrderStatisticMediansX: []float64{-0.5, 0.5}}})
	require.NoError(t, err)

	rows, err := repo.MonitoringRange(ctx, db, 0, d, d)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3.0, rows[0].RMSE)
	assert.Equal(t, []float64{-0.5, 0.5}, []float64(rows[0].OrderStatisticMediansX))

	only2, err := repo.MonitoringRange(ctx, db, 2, d, d)
	require.NoError(t, err)
	require.Len(t, only2, 1)
	assert.Equal(t, 2.0, only2[0].RMSE)
}

func TestLocationsAndSummaries(t *testing.T) {
	ctx := context.Background()
	repo, db := setup(t)
	d := day(2024, 1, 10)

	_, err := repo.Daily.Write(ctx, db, []entity.DailyReading{{LocationID: 5, ReadingDate: d}, {LocationID: 2, ReadingDate: d}, {LocationID: 5, ReadingDate: d.AddDate(0, 0, 1)}})
	require.NoError(t, err)
	ids, err := repo.Locations(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, ids)

	_, err = repo.Hourly.Write(ctx, db, hours(1, d, 4, 8, 6))
	require.NoError(t, err)
	_, err = repo.Hourly.Write(ctx, db, hours(1, d.AddDate(0, 0, 1), 1))
	require.NoError(t, err)

	summaries, err := repo.DailySummaries(ctx, db, d, d.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].ReadingDate.Equal(d))
	assert.InDelta(t, 6.0, summaries[0].Temperature, 1e-9)
	assert.Equal(t, 8.0, summaries[0].MaximumTemperature)
	assert.Equal(t, 4.0, summaries[0].MinimumTemperature)
	assert.Equal(t, 1.0, summaries[1].Temperature)
}

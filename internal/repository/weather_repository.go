// Package repository holds the windowed writers of the pipeline tables and the read queries over them.
package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/pkg/batch/component/step/writer"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

const moduleRepository = "WeatherRepository"

// WeatherRepository groups the per-table writers and the queries the units and the dashboard need.
// Every method takes the session to run on.
type WeatherRepository struct {
	Hourly     *writer.WindowedWriter[entity.HourlyReading]
	Daily      *writer.WindowedWriter[entity.DailyReading]
	Forecast   *writer.WindowedWriter[entity.ForecastRecord]
	Monitoring *writer.WindowedWriter[entity.MonitoringRecord]
}

// NewWeatherRepository creates the writers of the four pipeline tables.
func NewWeatherRepository() *WeatherRepository {
	return &WeatherRepository{
		Hourly: writer.NewWindowedWriter[entity.HourlyReading]("hourly", writer.Window{
			Table: entity.HourlyTable, DateColumn: "reading_timestamp", Timestamp: true, LocationColumn: "location_id",
		}, writer.DefaultBulkSize),
		Daily: writer.NewWindowedWriter[entity.DailyReading]("daily", writer.Window{
			Table: entity.DailyTable, DateColumn: "reading_date", LocationColumn: "location_id",
		}, writer.DefaultBulkSize),
		Forecast: writer.NewWindowedWriter[entity.ForecastRecord]("forecast", writer.Window{
			Table: entity.ForecastTable, DateColumn: "reading_date", LocationColumn: "location_id",
		}, writer.DefaultBulkSize),
		Monitoring: writer.NewWindowedWriter[entity.MonitoringRecord]("monitoring", writer.Window{
			Table: entity.MonitoringTable, DateColumn: "monitoring_date", LocationColumn: "location_id",
		}, writer.DefaultBulkSize),
	}
}

type locationMean struct {
	LocationID  int64   `gorm:"column:location_id"`
	Temperature float64 `gorm:"column:temperature"`
}

// AggregateDaily returns the mean hourly temperature of every location for date.
// No hourly rows for date yields an empty slice and no error.
func (r *WeatherRepository) AggregateDaily(ctx context.Context, session *gorm.DB, date time.Time) ([]entity.DailyReading, error) {
	day := entity.Day(date)
	var means []locationMean
	err := session.WithContext(ctx).
		Table(entity.HourlyTable).
		Select("location_id, AVG(temperature) AS temperature").
		Where("reading_timestamp >= ? AND reading_timestamp < ?", day, day.AddDate(0, 0, 1)).
		Group("location_id").
		Order("location_id").
		Scan(&means).Error
	if err != nil {
		return nil, queryError("aggregate daily temperatures", err)
	}

	daily := make([]entity.DailyReading, 0, len(means))
	for _, m := range means {
		daily = append(daily, entity.DailyReading{LocationID: m.LocationID, ReadingDate: day, Temperature: m.Temperature})
	}
	return daily, nil
}

// LoadHistory returns the daily rows in [date-windowDays, date], ordered by location and date.
func (r *WeatherRepository) LoadHistory(ctx context.Context, session *gorm.DB, date time.Time, windowDays int) ([]entity.DailyReading, error) {
	day := entity.Day(date)
	var rows []entity.DailyReading
	err := session.WithContext(ctx).
		Where("reading_date >= ? AND reading_date <= ?", day.AddDate(0, 0, -windowDays), day).
		Order("location_id, reading_date").
		Find(&rows).Error
	if err != nil {
		return nil, queryError("load daily history", err)
	}
	return rows, nil
}

// LoadJoined inner-joins forecasts with observed daily temperatures on location and date for dates in [from, to].
func (r *WeatherRepository) LoadJoined(ctx context.Context, session *gorm.DB, from, to time.Time) ([]entity.JoinedPair, error) {
	var pairs []entity.JoinedPair
	err := session.WithContext(ctx).
		Table(entity.ForecastTable+" AS f").
		Select("f.location_id, f.reading_date, f.forecasted_temperature, d.temperature").
		Joins("INNER JOIN "+entity.DailyTable+" AS d ON f.location_id = d.location_id AND f.reading_date = d.reading_date").
		Where("f.reading_date >= ? AND f.reading_date <= ?", entity.Day(from), entity.Day(to)).
		Order("f.location_id, f.reading_date").
		Scan(&pairs).Error
	if err != nil {
		return nil, queryError("load forecast/actual pairs", err)
	}
	return pairs, nil
}

// DailyRange returns the daily rows with reading_date in [from, to].
func (r *WeatherRepository) DailyRange(ctx context.Context, session *gorm.DB, from, to time.Time) ([]entity.DailyReading, error) {
	var rows []entity.DailyReading
	err := session.WithContext(ctx).
		Where("reading_date >= ? AND reading_date <= ?", entity.Day(from), entity.Day(to)).
		Order("reading_date, location_id").
		Find(&rows).Error
	if err != nil {
		return nil, queryError("load daily range", err)
	}
	return rows, nil
}

// HourlyRange returns the hourly rows whose calendar date is in [from, to].
func (r *WeatherRepository) HourlyRange(ctx context.Context, session *gorm.DB, from, to time.Time) ([]entity.HourlyReading, error) {
	var rows []entity.HourlyReading
	err := session.WithContext(ctx).
		Where("reading_timestamp >= ? AND reading_timestamp < ?", entity.Day(from), entity.Day(to).AddDate(0, 0, 1)).
		Order("reading_timestamp, location_id").
		Find(&rows).Error
	if err != nil {
		return nil, queryError("load hourly range", err)
	}
	return rows, nil
}

// ForecastRange returns the forecast rows with reading_date in [from, to].
func (r *WeatherRepository) ForecastRange(ctx context.Context, session *gorm.DB, from, to time.Time) ([]entity.ForecastRecord, error) {
	var rows []entity.ForecastRecord
	err := session.WithContext(ctx).
		Where("reading_date >= ? AND reading_date <= ?", entity.Day(from), entity.Day(to)).
		Order("reading_date, location_id").
		Find(&rows).Error
	if err != nil {
		return nil, queryError("load forecast range", err)
	}
	return rows, nil
}

// MonitoringRange returns monitoring rows with monitoring_date in [from, to]. A zero locationID matches every location.
func (r *WeatherRepository) MonitoringRange(ctx context.Context, session *gorm.DB, locationID int64, from, to time.Time) ([]entity.MonitoringRecord, error) {
	q := session.WithContext(ctx).Where("monitoring_date >= ? AND monitoring_date <= ?", entity.Day(from), entity.Day(to))
	if locationID != 0 {
		q = q.Where("location_id = ?", locationID)
	}
	var rows []entity.MonitoringRecord
	if err := q.Order("monitoring_date, location_id").Find(&rows).Error; err != nil {
		return nil, queryError("load monitoring range", err)
	}
	return rows, nil
}

// Locations lists the distinct locations with daily data.
func (r *WeatherRepository) Locations(ctx context.Context, session *gorm.DB) ([]int64, error) {
	var ids []int64
	err := session.WithContext(ctx).
		Model(&entity.DailyReading{}).
		Distinct("location_id").
		Order("location_id").
		Pluck("location_id", &ids).Error
	if err != nil {
		return nil, queryError("list locations", err)
	}
	return ids, nil
}

// DailySummaries returns the average, maximum and minimum hourly temperature of every date in [from, to],
// across locations, ordered by date.
func (r *WeatherRepository) DailySummaries(ctx context.Context, session *gorm.DB, from, to time.Time) ([]entity.DailySummary, error) {
	hourly, err := r.HourlyRange(ctx, session, from, to)
	if err != nil {
		return nil, err
	}
	return Summarize(hourly), nil
}

// Summarize groups hourly readings by calendar date.
func Summarize(hourly []entity.HourlyReading) []entity.DailySummary {
	type acc struct {
		sum, max, min float64
		n             int
	}
	byDay := make(map[time.Time]*acc)
	for _, h := range hourly {
		day := entity.Day(h.ReadingTimestamp)
		a, ok := byDay[day]
		if !ok {
			a = &acc{max: h.Temperature, min: h.Temperature}
			byDay[day] = a
		}
		a.sum += h.Temperature
		a.n++
		if h.Temperature > a.max {
			a.max = h.Temperature
		}
		if h.Temperature < a.min {
			a.min = h.Temperature
		}
	}

	out := make([]entity.DailySummary, 0, len(byDay))
	for day, a := range byDay {
		out = append(out, entity.DailySummary{
			ReadingDate:        day,
			Temperature:        a.sum / float64(a.n),
			MaximumTemperature: a.max,
			MinimumTemperature: a.min,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadingDate.Before(out[j].ReadingDate) })
	return out
}

func queryError(what string, err error) error {
	return exception.NewTransientExternalError(moduleRepository, fmt.Sprintf("failed to %s", what), err)
}

// Package entity defines the rows of the four pipeline tables.
package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Table names inside the configured schema.
const (
	HourlyTable     = "hourly_weather_data"
	DailyTable      = "daily_weather_data"
	ForecastTable   = "daily_forecasted_weather"
	MonitoringTable = "performance_monitoring"
)

// HourlyReading is one observation. ReadingTimestamp is the local wall-clock hour reported by the API,
// stored without offset; Timezone names the zone it belongs to.
type HourlyReading struct {
	LocationID       int64     `gorm:"column:location_id;not null" json:"location_id"`
	ReadingTimestamp time.Time `gorm:"column:reading_timestamp;not null" json:"reading_timestamp"`
	Temperature      float64   `gorm:"column:temperature" json:"temperature"`
	Timezone         string    `gorm:"column:timezone;size:64" json:"timezone"`
}

// TableName implements gorm's tabler interface.
func (HourlyReading) TableName() string { return HourlyTable }

// DailyReading is the mean of one location's hourly readings for one date.
type DailyReading struct {
	LocationID  int64     `gorm:"column:location_id;not null" json:"location_id"`
	ReadingDate time.Time `gorm:"column:reading_date;type:date;not null" json:"reading_date"`
	Temperature float64   `gorm:"column:temperature" json:"temperature"`
}

func (DailyReading) TableName() string { return DailyTable }

// ForecastRecord is one predicted date of a forecast run.
type ForecastRecord struct {
	LocationID            int64     `gorm:"column:location_id;not null" json:"location_id"`
	ReadingDate           time.Time `gorm:"column:reading_date;type:date;not null" json:"reading_date"`
	ForecastedTemperature float64   `gorm:"column:forecasted_temperature" json:"forecasted_temperature"`
}

func (ForecastRecord) TableName() string { return ForecastTable }

// MonitoringRecord holds the forecast quality metrics of one location on one monitoring date.
type MonitoringRecord struct {
	LocationID       int64     `gorm:"column:location_id;not null" json:"location_id"`
	MonitoringDate   time.Time `gorm:"column:monitoring_date;type:date;not null" json:"monitoring_date"`
	RMSE             float64   `gorm:"column:rmse" json:"rmse"`
	MeanError        float64   `gorm:"column:mean_error" json:"mean_error"`
	ErrorStd         float64   `gorm:"column:error_std" json:"error_std"`
	MeanAbsError     float64   `gorm:"column:mean_abs_error" json:"mean_abs_error"`
	AbsErrorStd      float64   `gorm:"column:abs_error_std" json:"abs_error_std"`
	MeanAbsPercError float64   `gorm:"column:mean_abs_perc_error" json:"mean_abs_perc_error"`
	AbsPercErrorStd  float64   `gorm:"column:abs_perc_error_std" json:"abs_perc_error_std"`
	// Probability plot of the errors against a normal distribution.
	OrderStatisticMediansX datatypes.JSONSlice[float64] `gorm:"column:order_statistic_medians_x" json:"order_statistic_medians_x"`
	OrderStatisticMediansY datatypes.JSONSlice[float64] `gorm:"column:order_statistic_medians_y" json:"order_statistic_medians_y"`
	Slope                  float64                      `gorm:"column:slope" json:"slope"`
	Intercept              float64                      `gorm:"column:intercept" json:"intercept"`
	R                      float64                      `gorm:"column:r" json:"r"`
}

func (MonitoringRecord) TableName() string { return MonitoringTable }

// JoinedPair is a forecast matched with the observed daily temperature of the same location and date.
type JoinedPair struct {
	LocationID            int64     `gorm:"column:location_id" json:"location_id"`
	ReadingDate           time.Time `gorm:"column:reading_date" json:"reading_date"`
	ForecastedTemperature float64   `gorm:"column:forecasted_temperature" json:"forecasted_temperature"`
	Temperature           float64   `gorm:"column:temperature" json:"temperature"`
}

// DailySummary is the per-date average, maximum and minimum of the hourly readings.
type DailySummary struct {
	ReadingDate        time.Time `json:"reading_date"`
	Temperature        float64   `json:"temperature"`
	MaximumTemperature float64   `json:"maximum_temperature"`
	MinimumTemperature float64   `json:"minimum_temperature"`
}

// Day returns the calendar date of t as UTC midnight. Every date column is written and queried in this form.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

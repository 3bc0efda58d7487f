// Package export archives daily and hourly readings as date-partitioned Parquet files in object storage.
package export

import (
	"context"
	"path"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage"
	"github.com/tigerroll/weatherflow/pkg/batch/component/step/writer"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

const moduleExport = "export"

// DailyRow is the Parquet layout of daily_weather_data.
type DailyRow struct {
	LocationID  int64   `parquet:"name=location_id,type=INT64"`
	ReadingDate string  `parquet:"name=reading_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	Temperature float64 `parquet:"name=temperature,type=DOUBLE"`
}

// HourlyRow is the Parquet layout of hourly_weather_data. ReadingTimestamp keeps the local wall clock.
type HourlyRow struct {
	LocationID       int64   `parquet:"name=location_id,type=INT64"`
	ReadingTimestamp string  `parquet:"name=reading_timestamp,type=BYTE_ARRAY,convertedtype=UTF8"`
	Temperature      float64 `parquet:"name=temperature,type=DOUBLE"`
	Timezone         string  `parquet:"name=timezone,type=BYTE_ARRAY,convertedtype=UTF8"`
}

func dailyPartition(r DailyRow) (string, error) {
	return "dt=" + r.ReadingDate, nil
}

func hourlyPartition(r HourlyRow) (string, error) {
	t, err := time.Parse(hourLayout, r.ReadingTimestamp)
	if err != nil {
		return "", err
	}
	return "dt=" + t.Format(time.DateOnly), nil
}

const hourLayout = "2006-01-02T15:04:05"

// StorageResolver is satisfied by *storage.ConnectionResolver.
type StorageResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error)
}

// Result lists what one export uploaded.
type Result struct {
	Objects []string
	Rows    map[string]int
}

// Exporter copies store rows to the archive.
type Exporter struct {
	repo     *repository.WeatherRepository
	resolver StorageResolver
	cfg      config.ExportConfig
}

// NewExporter creates an Exporter.
func NewExporter(repo *repository.WeatherRepository, resolver StorageResolver, cfg config.ExportConfig) *Exporter {
	return &Exporter{repo: repo, resolver: resolver, cfg: cfg}
}

// Export archives the daily and hourly rows of [runDate-days+1, runDate]. days <= 0 uses the configured days.
// Every partition is attempted; the failures are returned together.
func (e *Exporter) Export(ctx context.Context, session *gorm.DB, runDate time.Time, days int) (*Result, error) {
	if days <= 0 {
		days = e.cfg.Days
	}
	if e.cfg.StorageRef == "" {
		return nil, exception.NewConfigurationError(moduleExport, "export.storage_ref is not set", nil)
	}
	to := entity.Day(runDate)
	from := to.AddDate(0, 0, -(days - 1))

	conn, err := e.resolver.ResolveStorageConnection(ctx, e.cfg.StorageRef)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleExport, "failed to resolve export storage", err)
	}

	daily, err := e.repo.DailyRange(ctx, session, from, to)
	if err != nil {
		return nil, err
	}
	hourly, err := e.repo.HourlyRange(ctx, session, from, to)
	if err != nil {
		return nil, err
	}

	result := &Result{Rows: map[string]int{entity.DailyTable: len(daily), entity.HourlyTable: len(hourly)}}
	var errs error

	dailyObjects, err := exportTable(ctx, conn, e.props(entity.DailyTable), new(DailyRow), dailyPartition, toDailyRows(daily))
	result.Objects = append(result.Objects, dailyObjects...)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	hourlyObjects, err := exportTable(ctx, conn, e.props(entity.HourlyTable), new(HourlyRow), hourlyPartition, toHourlyRows(hourly))
	result.Objects = append(result.Objects, hourlyObjects...)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	logger.Infof("Exported %d daily and %d hourly rows for %s..%s into %d files.",
		len(daily), len(hourly), from.Format(time.DateOnly), to.Format(time.DateOnly), len(result.Objects))
	return result, errs
}

func (e *Exporter) props(table string) map[string]interface{} {
	return map[string]interface{}{
		"bucket":          e.cfg.Bucket,
		"outputBaseDir":   path.Join(e.cfg.OutputBaseDir, table),
		"compressionType": e.cfg.Compression,
	}
}

func exportTable[T any](ctx context.Context, conn storage.StorageConnection, props map[string]interface{}, proto *T, partition func(T) (string, error), rows []T) ([]string, error) {
	name, _ := props["outputBaseDir"].(string)
	w, err := writer.NewParquetWriter(name, props, proto, partition)
	if err != nil {
		return nil, err
	}
	if err := w.Write(rows); err != nil {
		return nil, err
	}
	return w.Flush(ctx, conn)
}

func toDailyRows(in []entity.DailyReading) []DailyRow {
	out := make([]DailyRow, len(in))
	for i, r := range in {
		out[i] = DailyRow{LocationID: r.LocationID, ReadingDate: r.ReadingDate.Format(time.DateOnly), Temperature: r.Temperature}
	}
	return out
}

func toHourlyRows(in []entity.HourlyReading) []HourlyRow {
	out := make([]HourlyRow, len(in))
	for i, r := range in {
		out[i] = HourlyRow{
			LocationID:       r.LocationID,
			ReadingTimestamp: r.ReadingTimestamp.Format(hourLayout),
			Temperature:      r.Temperature,
			Timezone:         r.Timezone,
		}
	}
	return out
}

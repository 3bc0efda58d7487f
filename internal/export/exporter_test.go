package export_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/export"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/internal/schema"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/weatherflow/pkg/batch/test"
)

type staticResolver struct {
	conn storage.StorageConnection
	err  error
}

func (r staticResolver) ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error) {
	return r.conn, r.err
}

func TestExport_WritesOnePartitionPerDate(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "weather")
	require.NoError(t, schema.Migrate(ctx, conn))
	db := conn.DB()
	repo := repository.NewWeatherRepository()

	d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	_, err := repo.Daily.Write(ctx, db, []entity.DailyReading{
		{LocationID: 1, ReadingDate: d.AddDate(0, 0, -2), Temperature: 8},
		{LocationID: 1, ReadingDate: d.AddDate(0, 0, -1), Temperature: 9},
		{LocationID: 1, ReadingDate: d, Temperature: 10},
		{LocationID: 2, ReadingDate: d, Temperature: 20},
	})
	require.NoError(t, err)
	_, err = repo.Hourly.Write(ctx, db, []entity.HourlyReading{
		{LocationID: 1, ReadingTimestamp: d.Add(3 * time.Hour), Temperature: 10, Timezone: "Africa/Cairo"},
		{LocationID: 1, ReadingTimestamp: d.Add(4 * time.Hour), Temperature: 11, Timezone: "Africa/Cairo"},
	})
	require.NoError(t, err)

	archive, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir(), BucketName: "archive"}, "archive")
	require.NoError(t, err)
	cfg := config.NewConfig().Export
	exporter := export.NewExporter(repo, staticResolver{conn: archive}, cfg)

	result, err := exporter.Export(ctx, db, d, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Rows[entity.DailyTable])
	assert.Equal(t, 2, result.Rows[entity.HourlyTable])
	require.Len(t, result.Objects, 3)

	var prefixes []string
	for _, o := range result.Objects {
		prefixes = append(prefixes, o[:strings.LastIndex(o, "/")])
	}
	sort.Strings(prefixes)
	assert.Equal(t, []string{
		"weatherflow/daily_weather_data/dt=2024-01-09",
		"weatherflow/daily_weather_data/dt=2024-01-10",
		"weatherflow/hourly_weather_data/dt=2024-01-10",
	}, prefixes)

	var dailyObject string
	for _, o := range result.Objects {
		if strings.Contains(o, "daily_weather_data/dt=2024-01-10") {
			dailyObject = o
		}
	}
	rc, err := archive.Download(ctx, "", dailyObject)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	file, err := buffer.NewBufferFile(data)
	require.NoError(t, err)
	pr, err := reader.NewParquetReader(file, new(export.DailyRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]export.DailyRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1].LocationID)
	assert.Equal(t, 20.0, rows[1].Temperature)
}

func TestExport_NothingToArchive(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "weather")
	require.NoError(t, schema.Migrate(ctx, conn))
	archive, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "archive")
	require.NoError(t, err)

	exporter := export.NewExporter(repository.NewWeatherRepository(), staticResolver{conn: archive}, config.NewConfig().Export)
	result, err := exporter.Export(ctx, conn.DB(), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	assert.Empty(t, result.Objects)
}

func TestExport_UnknownStorage(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "weather")
	exporter := export.NewExporter(repository.NewWeatherRepository(), staticResolver{err: errors.New("storage connection 'archive' not found")}, config.NewConfig().Export)
	_, err := exporter.Export(context.Background(), conn.DB(), time.Now(), 1)
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

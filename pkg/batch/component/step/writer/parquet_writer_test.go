package writer_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/weatherflow/pkg/batch/component/step/writer"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

type exportRow struct {
	LocationID  int64   `parquet:"name=location_id,type=INT64"`
	ReadingDate string  `parquet:"name=reading_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	Temperature float64 `parquet:"name=temperature,type=DOUBLE"`
}

func partitionByDate(r exportRow) (string, error) {
	return "dt=" + r.ReadingDate, nil
}

func newLocalConn(t *testing.T) storage.StorageConnection {
	t.Helper()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir(), BucketName: "archive"}, "archive")
	require.NoError(t, err)
	return conn
}

func TestParquetWriter_FlushWritesOneFilePerPartition(t *testing.T) {
	ctx := context.Background()
	conn := newLocalConn(t)
	w, err := writer.NewParquetWriter("daily", map[string]interface{}{"outputBaseDir": "weatherflow/daily_weather_data"}, new(exportRow), partitionByDate)
	require.NoError(t, err)

	require.NoError(t, w.Write([]exportRow{
		{LocationID: 1, ReadingDate: "2024-01-09", Temperature: 9.5},
		{LocationID: 1, ReadingDate: "2024-01-10", Temperature: 10},
		{LocationID: 2, ReadingDate: "2024-01-10", Temperature: 12},
	}))

	objects, err := w.Flush(ctx, conn)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.True(t, strings.HasPrefix(objects[0], "weatherflow/daily_weather_data/dt=2024-01-09/data_"))
	assert.True(t, strings.HasSuffix(objects[1], ".parquet"))

	rc, err := conn.Download(ctx, "", objects[1])
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	file, err := buffer.NewBufferFile(data)
	require.NoError(t, err)
	pr, err := reader.NewParquetReader(file, new(exportRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]exportRow, 2)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, 12.0, rows[1].Temperature)

	again, err := w.Flush(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, again, "buffers are cleared after a flush")
}

type failingConn struct {
	storage.StorageConnection
}

func (failingConn) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	return errors.New("bucket unavailable")
}

func TestParquetWriter_AggregatesUploadFailures(t *testing.T) {
	w, err := writer.NewParquetWriter("daily", map[string]interface{}{"outputBaseDir": "out", "compressionType": "gzip"}, new(exportRow), partitionByDate)
	require.NoError(t, err)
	require.NoError(t, w.Write([]exportRow{{ReadingDate: "2024-01-09"}, {ReadingDate: "2024-01-10"}}))

	objects, err := w.Flush(context.Background(), failingConn{})
	assert.Empty(t, objects)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrTransientExternal)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestNewParquetWriter_InvalidConfig(t *testing.T) {
	_, err := writer.NewParquetWriter("daily", map[string]interface{}{}, new(exportRow), partitionByDate)
	assert.ErrorIs(t, err, exception.ErrConfiguration)

	_, err = writer.NewParquetWriter("daily", map[string]interface{}{"outputBaseDir": "out", "compressionType": "LZ4"}, new(exportRow), partitionByDate)
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

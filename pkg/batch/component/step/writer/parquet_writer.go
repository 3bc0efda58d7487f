package writer

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/storage"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// Bucket is passed to the storage connection. Empty uses the connection's configured bucket.
	Bucket string `mapstructure:"bucket"`
	// OutputBaseDir is the object prefix for exported files (e.g., "weatherflow/daily_weather_data").
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is the compression type for Parquet files (e.g., "SNAPPY", "GZIP", "NONE").
	CompressionType string `mapstructure:"compressionType"`
}

// ParquetWriter buffers rows by partition key and uploads one Parquet file per partition on Flush.
type ParquetWriter[T any] struct {
	name   string
	config ParquetWriterConfig
	// itemPrototype is a pointer to a zero-value instance of the item type, used for Parquet schema reflection.
	itemPrototype *T
	// partitionKeyFunc extracts the partition directory (e.g., "dt=2024-01-10") from an item.
	partitionKeyFunc func(T) (string, error)

	bufferedItems map[string][]T
	totalBuffered int64
	// now is replaced in tests.
	now func() time.Time
}

// NewParquetWriter decodes properties into a ParquetWriterConfig and creates the writer.
func NewParquetWriter[T any](
	name string,
	properties map[string]interface{},
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	var config ParquetWriterConfig
	if err := mapstructure.Decode(properties, &config); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("failed to decode ParquetWriter properties for %s", name), err, false, false)
	}
	if config.OutputBaseDir == "" {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s' requires 'outputBaseDir' property", name), nil)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}
	if _, err := getCompressionCodec(config.CompressionType); err != nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s'", name), err)
	}

	return &ParquetWriter[T]{
		name:             name,
		config:           config,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		bufferedItems:    make(map[string][]T),
		now:              time.Now,
	}, nil
}

// Write adds items to the partition buffers. Nothing is uploaded until Flush.
func (w *ParquetWriter[T]) Write(items []T) error {
	for _, item := range items {
		partitionKey, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("failed to get partition key for item in ParquetWriter '%s'", w.name), err, false, false)
		}
		w.bufferedItems[partitionKey] = append(w.bufferedItems[partitionKey], item)
		w.totalBuffered++
	}
	logger.Debugf("ParquetWriter '%s' buffered %d items. Total buffered: %d.", w.name, len(items), w.totalBuffered)
	return nil
}

// Flush encodes every partition and uploads it through conn. A failing partition does not stop the others;
// all partition errors are returned together. The buffers are cleared either way.
// It returns the object names that were uploaded.
func (w *ParquetWriter[T]) Flush(ctx context.Context, conn storage.StorageConnection) ([]string, error) {
	defer func() {
		w.bufferedItems = make(map[string][]T)
		w.totalBuffered = 0
	}()
	if w.totalBuffered == 0 {
		logger.Infof("ParquetWriter '%s': No records buffered, skipping Parquet file generation.", w.name)
		return nil, nil
	}

	codec, err := getCompressionCodec(w.config.CompressionType)
	if err != nil {
		return nil, exception.NewConfigurationError("writer", fmt.Sprintf("ParquetWriter '%s'", w.name), err)
	}
	keys := make([]string, 0, len(w.bufferedItems))
	for k := range w.bufferedItems {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		multiErr error
		uploaded []string
	)
	for _, partitionKey := range keys {
		items := w.bufferedItems[partitionKey]
		buf, err := w.encode(items, codec)
		if err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchError("writer", fmt.Sprintf("failed to encode partition '%s' in ParquetWriter '%s'", partitionKey, w.name), err, false, false))
			continue
		}

		fileName := fmt.Sprintf("data_%s_%s.parquet", w.now().UTC().Format("20060102150405"), generateRandomString(8))
		objectName := path.Join(w.config.OutputBaseDir, partitionKey, fileName)
		if err := conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewTransientExternalError("writer", fmt.Sprintf("failed to upload partition '%s' to '%s'", partitionKey, objectName), err))
			continue
		}
		logger.Infof("ParquetWriter '%s': uploaded %d rows of partition '%s' to %s.", w.name, len(items), partitionKey, objectName)
		uploaded = append(uploaded, objectName)
	}
	return uploaded, multiErr
}

// encode writes items as one row group. Panics raised by the parquet library are returned as errors.
func (w *ParquetWriter[T]) encode(items []T, codec parquet.CompressionCodec) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, w.itemPrototype, 1)
	if err != nil {
		return nil, err
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = codec

	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// generateRandomString keeps file names unique across runs within the same second.
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// Package train holds the one-shot model development commands: extract, split, train and evaluate.
package train

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

const moduleTrain = "train"

// Observation is one dated value of a daily series.
type Observation struct {
	Date  time.Time
	Value float64
}

// ReadSeries reads the reading_date and temperature columns of a CSV written by Extract or Split,
// in file order.
func ReadSeries(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleTrain, fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to parse %s", path), err, false, false)
	}
	if len(records) == 0 {
		return nil, exception.NewBatchErrorf(moduleTrain, "%s is empty", path)
	}
	dateCol, valueCol := -1, -1
	for i, name := range records[0] {
		switch name {
		case "reading_date":
			dateCol = i
		case "temperature":
			valueCol = i
		}
	}
	if dateCol < 0 || valueCol < 0 {
		return nil, exception.NewBatchErrorf(moduleTrain, "%s needs reading_date and temperature columns, got %v", path, records[0])
	}

	out := make([]Observation, 0, len(records)-1)
	for line, rec := range records[1:] {
		d, err := time.Parse(time.DateOnly, rec[dateCol])
		if err != nil {
			return nil, exception.NewBatchError(moduleTrain, fmt.Sprintf("%s line %d: bad reading_date", path, line+2), err, false, false)
		}
		v, err := strconv.ParseFloat(rec[valueCol], 64)
		if err != nil {
			return nil, exception.NewBatchError(moduleTrain, fmt.Sprintf("%s line %d: bad temperature", path, line+2), err, false, false)
		}
		out = append(out, Observation{Date: d, Value: v})
	}
	return out, nil
}

// WriteSeries writes obs with a reading_date,temperature header.
func WriteSeries(path string, obs []Observation) error {
	rows := make([][]string, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, []string{o.Date.Format(time.DateOnly), formatFloat(o.Value)})
	}
	return writeCSV(path, []string{"reading_date", "temperature"}, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to create directory for %s", path), err, false, false)
	}
	f, err := os.Create(path)
	if err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to create %s", path), err, false, false)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to write %s", path), err, false, false)
	}
	if err := w.WriteAll(rows); err != nil {
		return exception.NewBatchError(moduleTrain, fmt.Sprintf("failed to write %s", path), err, false, false)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func values(obs []Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}

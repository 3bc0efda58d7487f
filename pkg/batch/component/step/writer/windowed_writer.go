package writer

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// DefaultBulkSize is the number of rows per INSERT statement.
const DefaultBulkSize = 500

// Window describes a table keyed by a date-valued column.
type Window struct {
	// Table is the unqualified table name.
	Table string
	// DateColumn holds the key date of every row.
	DateColumn string
	// Timestamp marks a column holding hour-resolution timestamps. A key date then covers [date, date+1).
	Timestamp bool
	// LocationColumn restricts ReconcileLocation. Empty disables it.
	LocationColumn string
}

// WindowedWriter implements delete-then-insert reconciliation and retention pruning for one table.
// Every operation runs on the session passed in, so a unit can keep all its statements on one connection.
type WindowedWriter[T any] struct {
	name     string
	window   Window
	bulkSize int
}

// NewWindowedWriter creates a writer for window. A bulkSize below 1 uses DefaultBulkSize.
func NewWindowedWriter[T any](name string, window Window, bulkSize int) *WindowedWriter[T] {
	if bulkSize < 1 {
		bulkSize = DefaultBulkSize
	}
	return &WindowedWriter[T]{name: name, window: window, bulkSize: bulkSize}
}

// Window returns the table descriptor.
func (w *WindowedWriter[T]) Window() Window {
	return w.window
}

// Reconcile deletes every row whose key date equals date. Deleting nothing is not an error.
func (w *WindowedWriter[T]) Reconcile(ctx context.Context, session *gorm.DB, date time.Time) (int64, error) {
	return w.delete(ctx, "reconcile", w.sameDay(session.WithContext(ctx).Table(w.window.Table), date))
}

// ReconcileLocation deletes the rows of one location whose key date equals date.
func (w *WindowedWriter[T]) ReconcileLocation(ctx context.Context, session *gorm.DB, date time.Time, locationID int64) (int64, error) {
	if w.window.LocationColumn == "" {
		return 0, exception.NewConfigurationError(w.name, fmt.Sprintf("table %s has no location column", w.window.Table), nil)
	}
	q := session.WithContext(ctx).Table(w.window.Table).Where(w.window.LocationColumn+" = ?", locationID)
	return w.delete(ctx, "reconcile", w.sameDay(q, date))
}

// Write appends rows in chunks of bulkSize. It never checks for duplicates.
func (w *WindowedWriter[T]) Write(ctx context.Context, session *gorm.DB, rows []T) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	result := session.WithContext(ctx).Table(w.window.Table).CreateInBatches(rows, w.bulkSize)
	if result.Error != nil {
		return 0, exception.NewTransientExternalError(w.name, fmt.Sprintf("failed to insert %d rows into %s", len(rows), w.window.Table), result.Error)
	}
	logger.Infof("WindowedWriter '%s': inserted %d rows into %s.", w.name, result.RowsAffected, w.window.Table)
	return result.RowsAffected, nil
}

// Prune deletes every row whose key date is on or before runDate minus horizonDays.
func (w *WindowedWriter[T]) Prune(ctx context.Context, session *gorm.DB, runDate time.Time, horizonDays int) (int64, error) {
	threshold := Threshold(runDate, horizonDays)
	q := session.WithContext(ctx).Table(w.window.Table)
	if w.window.Timestamp {
		q = q.Where(w.window.DateColumn+" < ?", threshold.AddDate(0, 0, 1))
	} else {
		q = q.Where(w.window.DateColumn+" <= ?", threshold)
	}
	n, err := w.delete(ctx, "prune", q)
	if err == nil {
		logger.Debugf("WindowedWriter '%s': retention threshold for %s is %s.", w.name, w.window.Table, threshold.Format(time.DateOnly))
	}
	return n, err
}

// Threshold returns runDate minus days as a UTC date.
func Threshold(runDate time.Time, days int) time.Time {
	d := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -days)
}

func (w *WindowedWriter[T]) sameDay(q *gorm.DB, date time.Time) *gorm.DB {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if w.window.Timestamp {
		return q.Where(w.window.DateColumn+" >= ? AND "+w.window.DateColumn+" < ?", day, day.AddDate(0, 0, 1))
	}
	return q.Where(w.window.DateColumn+" = ?", day)
}

func (w *WindowedWriter[T]) delete(ctx context.Context, op string, q *gorm.DB) (int64, error) {
	var zero T
	result := q.Delete(&zero)
	if result.Error != nil {
		return 0, exception.NewTransientExternalError(w.name, fmt.Sprintf("%s on %s failed", op, w.window.Table), result.Error)
	}
	logger.Infof("WindowedWriter '%s': %s deleted %d rows from %s.", w.name, op, result.RowsAffected, w.window.Table)
	return result.RowsAffected, nil
}

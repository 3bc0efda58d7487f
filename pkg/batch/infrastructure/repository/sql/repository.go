// Package sql provides a GORM-backed UnitExecutionRepository.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/weatherflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// SQLUnitExecutionRepository implements repository.UnitExecutionRepository over a named connection.
type SQLUnitExecutionRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the connection holding batch_unit_execution (e.g., "default").
	dbName string
}

// NewSQLUnitExecutionRepository creates a new instance of SQLUnitExecutionRepository.
func NewSQLUnitExecutionRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLUnitExecutionRepository {
	return &SQLUnitExecutionRepository{dbResolver: dbResolver, dbName: dbName}
}

func (r *SQLUnitExecutionRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError("SQLUnitExecutionRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

func (r *SQLUnitExecutionRepository) SaveUnitExecution(ctx context.Context, execution *model.UnitExecution) error {
	const op = "SQLUnitExecutionRepository.SaveUnitExecution"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	if err := conn.DB().WithContext(ctx).Create(execution).Error; err != nil {
		if conn.IsTableNotExistError(err) {
			logger.Warnf("%s: table %s does not exist yet; run history is not recorded.", op, execution.TableName())
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to save UnitExecution (ID: %s)", execution.ID), err, true, false)
	}
	return nil
}

func (r *SQLUnitExecutionRepository) UpdateUnitExecution(ctx context.Context, execution *model.UnitExecution) error {
	const op = "SQLUnitExecutionRepository.UpdateUnitExecution"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	result := conn.DB().WithContext(ctx).
		Model(&model.UnitExecution{}).
		Where("id = ?", execution.ID).
		Updates(map[string]interface{}{
			"status":       execution.Status,
			"exit_status":  execution.ExitStatus,
			"exit_message": execution.ExitMessage,
			"rows_written": execution.RowsWritten,
			"end_time":     execution.EndTime,
			"last_updated": execution.LastUpdated,
		})
	if result.Error != nil {
		if conn.IsTableNotExistError(result.Error) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to update UnitExecution (ID: %s)", execution.ID), result.Error, true, false)
	}
	if result.RowsAffected == 0 {
		return exception.NewBatchError(op, fmt.Sprintf("UnitExecution (ID: %s) not found for update", execution.ID), repository.ErrUnitExecutionNotFound, false, false)
	}
	return nil
}

func (r *SQLUnitExecutionRepository) FindUnitExecutionByID(ctx context.Context, id string) (*model.UnitExecution, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var execution model.UnitExecution
	if err := conn.DB().WithContext(ctx).Where("id = ?", id).First(&execution).Error; err != nil {
		return nil, r.translateFindError(err)
	}
	return &execution, nil
}

func (r *SQLUnitExecutionRepository) FindLatestUnitExecution(ctx context.Context, unitName string, runDate time.Time) (*model.UnitExecution, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	day := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)
	var execution model.UnitExecution
	err = conn.DB().WithContext(ctx).
		Where("unit_name = ? AND run_date >= ? AND run_date < ?", unitName, day, day.AddDate(0, 0, 1)).
		Order("start_time DESC").
		First(&execution).Error
	if err != nil {
		return nil, r.translateFindError(err)
	}
	return &execution, nil
}

func (r *SQLUnitExecutionRepository) ListUnitExecutions(ctx context.Context, limit int) ([]*model.UnitExecution, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	query := conn.DB().WithContext(ctx).Order("start_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var executions []*model.UnitExecution
	if err := query.Find(&executions).Error; err != nil {
		return nil, exception.NewBatchError("SQLUnitExecutionRepository.ListUnitExecutions", "failed to list unit executions", err, true, false)
	}
	return executions, nil
}

func (r *SQLUnitExecutionRepository) translateFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrUnitExecutionNotFound
	}
	return exception.NewBatchError("SQLUnitExecutionRepository", "failed to find unit execution", err, true, false)
}

var _ repository.UnitExecutionRepository = (*SQLUnitExecutionRepository)(nil)

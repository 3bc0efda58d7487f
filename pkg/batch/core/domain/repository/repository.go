package repository

import (
	"context"
	"errors"
	"time"

	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

// ErrUnitExecutionNotFound is returned when no UnitExecution matches the lookup.
var ErrUnitExecutionNotFound = errors.New("unit execution not found")

func init() {
	exception.RegisterErrorType("ErrUnitExecutionNotFound", ErrUnitExecutionNotFound)
}

// UnitExecutionRepository persists the audit trail of unit runs.
type UnitExecutionRepository interface {
	// SaveUnitExecution persists a new UnitExecution.
	SaveUnitExecution(ctx context.Context, execution *model.UnitExecution) error

	// UpdateUnitExecution updates the state of an existing UnitExecution.
	UpdateUnitExecution(ctx context.Context, execution *model.UnitExecution) error

	// FindUnitExecutionByID finds a UnitExecution by its ID.
	FindUnitExecutionByID(ctx context.Context, id string) (*model.UnitExecution, error)

	// FindLatestUnitExecution returns the most recently started run of unitName for runDate.
	FindLatestUnitExecution(ctx context.Context, unitName string, runDate time.Time) (*model.UnitExecution, error)

	// ListUnitExecutions returns up to limit runs, newest first. limit <= 0 means no limit.
	ListUnitExecutions(ctx context.Context, limit int) ([]*model.UnitExecution, error)
}

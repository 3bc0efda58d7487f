package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// UnitStatus represents the state of a unit execution.
type UnitStatus string

const (
	UnitStatusPending     UnitStatus = "PENDING"
	UnitStatusFetching    UnitStatus = "FETCHING"
	UnitStatusAggregating UnitStatus = "AGGREGATING"
	UnitStatusReconciling UnitStatus = "RECONCILING"
	UnitStatusInserting   UnitStatus = "INSERTING"
	UnitStatusPruning     UnitStatus = "PRUNING"
	UnitStatusDone        UnitStatus = "DONE"
	UnitStatusFailed      UnitStatus = "FAILED"
)

// String returns the string representation of the UnitStatus.
func (s UnitStatus) String() string {
	return string(s)
}

// IsFinished reports whether s is terminal.
func (s UnitStatus) IsFinished() bool {
	return s == UnitStatusDone || s == UnitStatusFailed
}

// ExitStatus summarizes how a finished unit ended.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	// ExitStatusNoOp marks a unit that finished without writing: aggregation not ready, or no history to forecast.
	ExitStatusNoOp   ExitStatus = "NO_OP"
	ExitStatusFailed ExitStatus = "FAILED"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

var validUnitTransitions = map[UnitStatus][]UnitStatus{
	UnitStatusPending:     {UnitStatusFetching, UnitStatusAggregating, UnitStatusFailed},
	UnitStatusFetching:    {UnitStatusReconciling, UnitStatusInserting, UnitStatusDone, UnitStatusFailed},
	UnitStatusAggregating: {UnitStatusReconciling, UnitStatusInserting, UnitStatusDone, UnitStatusFailed},
	UnitStatusReconciling: {UnitStatusInserting, UnitStatusFailed},
	UnitStatusInserting:   {UnitStatusPruning, UnitStatusDone, UnitStatusFailed},
	UnitStatusPruning:     {UnitStatusDone, UnitStatusFailed},
}

// IsValidUnitTransition checks if a unit may move from current to next. DONE and FAILED are terminal.
func IsValidUnitTransition(current, next UnitStatus) bool {
	for _, allowed := range validUnitTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// UnitExecution is the audit record of one unit run for one run date.
type UnitExecution struct {
	ID          string     `gorm:"column:id;primaryKey;size:36"`
	UnitName    string     `gorm:"column:unit_name;size:64;not null;index:idx_unit_run"`
	RunDate     time.Time  `gorm:"column:run_date;type:date;not null;index:idx_unit_run"`
	Status      UnitStatus `gorm:"column:status;size:16;not null"`
	ExitStatus  ExitStatus `gorm:"column:exit_status;size:16;not null"`
	ExitMessage string     `gorm:"column:exit_message;type:text"`
	RowsWritten int64      `gorm:"column:rows_written"`
	StartTime   time.Time  `gorm:"column:start_time;not null"`
	EndTime     *time.Time `gorm:"column:end_time"`
	LastUpdated time.Time  `gorm:"column:last_updated;not null"`
}

// TableName implements gorm's tabler interface.
func (UnitExecution) TableName() string {
	return "batch_unit_execution"
}

// NewUnitExecution creates a PENDING execution for unitName on runDate.
func NewUnitExecution(unitName string, runDate time.Time) *UnitExecution {
	now := time.Now()
	return &UnitExecution{
		ID:          uuid.New().String(),
		UnitName:    unitName,
		RunDate:     runDate,
		Status:      UnitStatusPending,
		ExitStatus:  ExitStatusUnknown,
		StartTime:   now,
		LastUpdated: now,
	}
}

// TransitionTo moves the execution to newStatus. Only Status and LastUpdated change.
func (ue *UnitExecution) TransitionTo(newStatus UnitStatus) error {
	if !IsValidUnitTransition(ue.Status, newStatus) {
		return exception.NewBatchErrorf("model", "UnitExecution (ID: %s, unit: %s): invalid state transition: %s -> %s",
			ue.ID, ue.UnitName, ue.Status, newStatus)
	}
	ue.Status = newStatus
	ue.LastUpdated = time.Now()
	return nil
}

// MarkDone finishes the execution. noop marks a run that wrote nothing.
func (ue *UnitExecution) MarkDone(noop bool) {
	if err := ue.TransitionTo(UnitStatusDone); err != nil {
		logger.Warnf("Could not update UnitExecution (ID: %s) status to DONE: %v", ue.ID, err)
		ue.Status = UnitStatusDone
	}
	ue.ExitStatus = ExitStatusCompleted
	if noop {
		ue.ExitStatus = ExitStatusNoOp
	}
	ue.finish()
}

// MarkFailed finishes the execution with err.
func (ue *UnitExecution) MarkFailed(err error) {
	if terr := ue.TransitionTo(UnitStatusFailed); terr != nil {
		logger.Warnf("Could not update UnitExecution (ID: %s) status to FAILED: %v", ue.ID, terr)
		ue.Status = UnitStatusFailed
	}
	ue.ExitStatus = ExitStatusFailed
	ue.ExitMessage = exception.ExtractErrorMessage(err)
	ue.finish()
}

// AddRowsWritten accumulates rows written by insert stages.
func (ue *UnitExecution) AddRowsWritten(n int64) {
	ue.RowsWritten += n
	ue.LastUpdated = time.Now()
}

// Duration returns the elapsed time, up to now when still running.
func (ue *UnitExecution) Duration() time.Duration {
	if ue.EndTime == nil {
		return time.Since(ue.StartTime)
	}
	return ue.EndTime.Sub(ue.StartTime)
}

// String renders a compact description for logs.
func (ue *UnitExecution) String() string {
	return fmt.Sprintf("%s[%s] %s/%s", ue.UnitName, ue.RunDate.Format(time.DateOnly), ue.Status, ue.ExitStatus)
}

func (ue *UnitExecution) finish() {
	now := time.Now()
	ue.EndTime = &now
	ue.LastUpdated = now
}

// Package runner executes units of work: one run date, one database session, a sequence of retried stages.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/weatherflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
	"github.com/tigerroll/weatherflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Body is the work of one unit. It runs inside the unit's session.
type Body func(ctx context.Context, unit *Unit) error

// UnitRunner opens a session per unit, drives the UnitExecution state machine and persists it.
type UnitRunner struct {
	resolver database.DBConnectionResolver
	dbName   string
	repo     repository.UnitExecutionRepository
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewUnitRunner creates a UnitRunner using the connection named dbName.
func NewUnitRunner(
	resolver database.DBConnectionResolver,
	dbName string,
	repo repository.UnitExecutionRepository,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *UnitRunner {
	return &UnitRunner{
		resolver: resolver,
		dbName:   dbName,
		repo:     repo,
		recorder: recorder,
		tracer:   tracer,
		inflight: make(map[string]struct{}),
	}
}

// Run executes body as unitName for runDate and returns the finished execution.
// The session is released when body returns, whether it failed or not. A second run of the same unit and
// date while one is in flight is rejected.
func (r *UnitRunner) Run(ctx context.Context, unitName string, runDate time.Time, body Body) (*model.UnitExecution, error) {
	exec := model.NewUnitExecution(unitName, runDate)

	release, err := r.acquire(unitName, runDate)
	if err != nil {
		exec.MarkFailed(err)
		return exec, err
	}
	defer release()

	ctx, endSpan := r.tracer.StartUnitSpan(ctx, exec)
	defer endSpan()

	r.recorder.RecordUnitStart(ctx, exec)
	if err := r.repo.SaveUnitExecution(ctx, exec); err != nil {
		logger.Warnf("UnitRunner: Failed to save UnitExecution (ID: %s): %v", exec.ID, err)
	}
	logger.Infof("Unit '%s' started for run date %s (ID: %s).", unitName, runDate.Format(time.DateOnly), exec.ID)

	unit := &Unit{Execution: exec, runner: r}
	err = r.execute(ctx, unit, body)

	if err != nil {
		exec.MarkFailed(err)
		r.tracer.RecordError(ctx, unitName, err)
		logger.Errorf("Unit '%s' failed for run date %s: %v", unitName, runDate.Format(time.DateOnly), err)
	} else {
		exec.MarkDone(unit.noop)
		logger.Infof("Unit '%s' finished for run date %s: %s, %d rows written in %s.",
			unitName, runDate.Format(time.DateOnly), exec.ExitStatus, exec.RowsWritten, exec.Duration().Round(time.Millisecond))
	}
	r.recorder.RecordUnitEnd(ctx, exec)

	// The audit trail is best effort.
	if updateErr := r.repo.UpdateUnitExecution(context.WithoutCancel(ctx), exec); updateErr != nil {
		logger.Warnf("UnitRunner: Failed to update final UnitExecution (ID: %s) state: %v", exec.ID, updateErr)
	}
	return exec, err
}

func (r *UnitRunner) execute(ctx context.Context, unit *Unit, body Body) error {
	conn, err := r.resolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return exception.NewConfigurationError("runner", fmt.Sprintf("failed to resolve database connection '%s'", r.dbName), err)
	}
	return conn.WithSession(ctx, func(session *gorm.DB) error {
		unit.session = session
		defer func() { unit.session = nil }()
		return body(ctx, unit)
	})
}

func (r *UnitRunner) acquire(unitName string, runDate time.Time) (func(), error) {
	key := unitName + "@" + runDate.Format(time.DateOnly)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[key]; busy {
		return nil, exception.NewBatchErrorf("runner", "unit '%s' is already running for %s", unitName, runDate.Format(time.DateOnly))
	}
	r.inflight[key] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}, nil
}

// Unit is handed to a Body. It exposes the session and runs stages under retry policies.
type Unit struct {
	Execution *model.UnitExecution
	session   *gorm.DB
	runner    *UnitRunner
	noop      bool
}

// Session returns the unit's database session.
func (u *Unit) Session() *gorm.DB {
	return u.session
}

// MarkNoOp records that the unit finished without writing anything.
func (u *Unit) MarkNoOp() {
	u.noop = true
}

// Stage moves the unit to status, then runs fn under policy. Retries and the stage duration are recorded.
// Staying in the current status (e.g. a second query while FETCHING) is allowed.
func (u *Unit) Stage(ctx context.Context, status model.UnitStatus, stage string, policy retry.RetryPolicy, fn func(ctx context.Context) error) error {
	if u.Execution.Status != status {
		if err := u.Execution.TransitionTo(status); err != nil {
			return err
		}
	}
	unitName := u.Execution.UnitName
	ctx, endSpan := u.runner.tracer.StartStageSpan(ctx, unitName, stage)
	defer endSpan()

	executor := retry.NewExecutor(func(name string, attempt int, err error) {
		u.runner.recorder.RecordRetry(ctx, unitName, stage, exception.ExtractErrorMessage(err))
	})
	start := time.Now()
	err := executor.Execute(ctx, unitName+"."+stage, policy, fn)
	u.runner.recorder.RecordStageDuration(ctx, unitName, stage, time.Since(start), err)
	if err != nil {
		u.runner.tracer.RecordError(ctx, unitName, err)
	}
	return err
}

// StageValue is Stage for stages producing a value.
func StageValue[T any](ctx context.Context, u *Unit, status model.UnitStatus, stage string, policy retry.RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := u.Stage(ctx, status, stage, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// AddRows counts rows inserted into table.
func (u *Unit) AddRows(ctx context.Context, table string, n int64) {
	u.Execution.AddRowsWritten(n)
	u.runner.recorder.RecordRowsWritten(ctx, u.Execution.UnitName, table, n)
}

// Package inmemory provides an in-memory UnitExecutionRepository, used when no database records run history.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/domain/repository"
)

// InMemoryUnitExecutionRepository keeps executions in a map keyed by ID.
type InMemoryUnitExecutionRepository struct {
	mu         sync.RWMutex
	executions map[string]*model.UnitExecution
}

// NewInMemoryUnitExecutionRepository creates an empty repository.
func NewInMemoryUnitExecutionRepository() *InMemoryUnitExecutionRepository {
	return &InMemoryUnitExecutionRepository{executions: make(map[string]*model.UnitExecution)}
}

// SaveUnitExecution returns an error if an execution with the same ID already exists.
func (r *InMemoryUnitExecutionRepository) SaveUnitExecution(ctx context.Context, execution *model.UnitExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[execution.ID]; exists {
		return fmt.Errorf("UnitExecution with ID %s already exists", execution.ID)
	}
	clone := *execution
	r.executions[execution.ID] = &clone
	return nil
}

// UpdateUnitExecution returns an error if the execution is unknown.
func (r *InMemoryUnitExecutionRepository) UpdateUnitExecution(ctx context.Context, execution *model.UnitExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[execution.ID]; !exists {
		return fmt.Errorf("UnitExecution with ID %s not found for update", execution.ID)
	}
	clone := *execution
	r.executions[execution.ID] = &clone
	return nil
}

// FindUnitExecutionByID returns a copy of the stored execution.
func (r *InMemoryUnitExecutionRepository) FindUnitExecutionByID(ctx context.Context, id string) (*model.UnitExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, repository.ErrUnitExecutionNotFound
	}
	clone := *execution
	return &clone, nil
}

func (r *InMemoryUnitExecutionRepository) FindLatestUnitExecution(ctx context.Context, unitName string, runDate time.Time) (*model.UnitExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.UnitExecution
	for _, e := range r.executions {
		if e.UnitName != unitName || !sameDay(e.RunDate, runDate) {
			continue
		}
		if latest == nil || e.StartTime.After(latest.StartTime) {
			latest = e
		}
	}
	if latest == nil {
		return nil, repository.ErrUnitExecutionNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *InMemoryUnitExecutionRepository) ListUnitExecutions(ctx context.Context, limit int) ([]*model.UnitExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.UnitExecution, 0, len(r.executions))
	for _, e := range r.executions {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

var _ repository.UnitExecutionRepository = (*InMemoryUnitExecutionRepository)(nil)

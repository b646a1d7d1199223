// Package inmemory provides a RunRepository that keeps the history of the
// current process only. It is used when SQL run history is disabled, and in tests.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/repository"
)

// InMemoryRunRepository holds runs and stage executions in maps.
type InMemoryRunRepository struct {
	runs   map[string]*model.PipelineRun
	stages map[string]*model.StageExecution
	mu     sync.RWMutex
}

// NewInMemoryRunRepository creates an empty repository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		runs:   make(map[string]*model.PipelineRun),
		stages: make(map[string]*model.StageExecution),
	}
}

// SavePipelineRun fails if a run with the same ID already exists.
func (r *InMemoryRunRepository) SavePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("PipelineRun with ID %s already exists", run.ID)
	}
	r.runs[run.ID] = copyRun(run)
	return nil
}

func (r *InMemoryRunRepository) UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.runs[run.ID]
	if !exists {
		return fmt.Errorf("PipelineRun with ID %s not found for update", run.ID)
	}
	if stored.Version != run.Version {
		return fmt.Errorf("PipelineRun (ID: %s) with version %d: %w", run.ID, run.Version, repository.ErrOptimisticLock)
	}
	run.Version++
	r.runs[run.ID] = copyRun(run)
	return nil
}

func (r *InMemoryRunRepository) FindPipelineRunByID(ctx context.Context, id string) (*model.PipelineRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrPipelineRunNotFound
	}
	run := copyRun(stored)
	run.StageExecutions = r.stagesOf(id)
	return run, nil
}

func (r *InMemoryRunRepository) FindRecentPipelineRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*model.PipelineRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, copyRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.After(runs[j].StartTime) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *InMemoryRunRepository) SaveStageExecution(ctx context.Context, se *model.StageExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stages[se.ID]; exists {
		return fmt.Errorf("StageExecution with ID %s already exists", se.ID)
	}
	c := *se
	r.stages[se.ID] = &c
	return nil
}

func (r *InMemoryRunRepository) UpdateStageExecution(ctx context.Context, se *model.StageExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stages[se.ID]
	if !exists {
		return fmt.Errorf("StageExecution with ID %s not found for update", se.ID)
	}
	if stored.Version != se.Version {
		return fmt.Errorf("StageExecution (ID: %s) with version %d: %w", se.ID, se.Version, repository.ErrOptimisticLock)
	}
	se.Version++
	c := *se
	r.stages[se.ID] = &c
	return nil
}

func (r *InMemoryRunRepository) FindStageExecutionsByRunID(ctx context.Context, runID string) ([]*model.StageExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stagesOf(runID), nil
}

// stagesOf must be called with r.mu held.
func (r *InMemoryRunRepository) stagesOf(runID string) []*model.StageExecution {
	stages := make([]*model.StageExecution, 0)
	for _, se := range r.stages {
		if se.RunID == runID {
			c := *se
			stages = append(stages, &c)
		}
	}
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].StartTime.Before(stages[j].StartTime) })
	return stages
}

// copyRun copies run without its stage executions, which are stored separately.
func copyRun(run *model.PipelineRun) *model.PipelineRun {
	c := *run
	c.Stages = append([]string(nil), run.Stages...)
	c.Failures = append(model.FailureList(nil), run.Failures...)
	c.StageExecutions = nil
	return &c
}

// Close releases nothing; the repository holds no external resources.
func (r *InMemoryRunRepository) Close() error {
	return nil
}

var _ repository.RunRepository = (*InMemoryRunRepository)(nil)

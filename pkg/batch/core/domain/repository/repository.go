package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// ErrPipelineRunNotFound is returned when no run matches the requested ID.
var ErrPipelineRunNotFound = errors.New("pipeline run not found")

// ErrOptimisticLock is returned when an update targets a stale version.
var ErrOptimisticLock = errors.New("record was modified concurrently")

// PipelineRun persists run-level records.
type PipelineRun interface {
	// SavePipelineRun inserts a new run.
	SavePipelineRun(ctx context.Context, run *model.PipelineRun) error
	// UpdatePipelineRun updates an existing run and bumps its version.
	UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error
	// FindPipelineRunByID loads a run together with its stage executions.
	FindPipelineRunByID(ctx context.Context, id string) (*model.PipelineRun, error)
	// FindRecentPipelineRuns returns up to limit runs, newest first, without stage executions.
	FindRecentPipelineRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error)
}

// StageExecution persists stage-level records.
type StageExecution interface {
	SaveStageExecution(ctx context.Context, se *model.StageExecution) error
	UpdateStageExecution(ctx context.Context, se *model.StageExecution) error
	// FindStageExecutionsByRunID returns the stages of a run ordered by start time.
	FindStageExecutionsByRunID(ctx context.Context, runID string) ([]*model.StageExecution, error)
}

// RunRepository stores the execution history of the pipeline.
type RunRepository interface {
	PipelineRun
	StageExecution

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}

// Package port defines the contracts between the pipeline runner, its stages
// and the execution listeners.
package port

import (
	"context"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// Stage is one independently runnable unit of the pipeline.
type Stage interface {
	// Name returns the stable stage name used for selection and run history
	// (e.g., "extract-intensity").
	Name() string
	// Execute runs the stage.
	//
	// Returns: an outcome with ExitStatus COMPLETED or NOOP on success. A non-nil
	// error marks the stage FAILED; the runner continues with the next stage.
	Execute(ctx context.Context) (model.StageOutcome, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context) (model.StageOutcome, error)
}

// Name returns the stage name.
func (s StageFunc) Name() string { return s.StageName }

// Execute calls the wrapped function.
func (s StageFunc) Execute(ctx context.Context) (model.StageOutcome, error) { return s.Fn(ctx) }

// RunListener is notified around a whole PipelineRun.
type RunListener interface {
	// BeforeRun is called after the run is persisted as STARTED and before the first stage.
	BeforeRun(ctx context.Context, run *model.PipelineRun)
	// AfterRun is called once every selected stage has finished, successful or not.
	AfterRun(ctx context.Context, run *model.PipelineRun)
}

// StageListener is notified around each StageExecution.
type StageListener interface {
	// BeforeStage is called just before a stage executes.
	BeforeStage(ctx context.Context, execution *model.StageExecution)
	// AfterStage is called after a stage completes (regardless of success or failure).
	AfterStage(ctx context.Context, execution *model.StageExecution)
}

type contextKey string

const stageExecutionKey contextKey = "stageExecution"

// ContextWithStageExecution stores a StageExecution in the Context.
func ContextWithStageExecution(ctx context.Context, se *model.StageExecution) context.Context {
	return context.WithValue(ctx, stageExecutionKey, se)
}

// StageExecutionFromContext retrieves a StageExecution from the Context. Returns nil if not found.
func StageExecutionFromContext(ctx context.Context) *model.StageExecution {
	if se, ok := ctx.Value(stageExecutionKey).(*model.StageExecution); ok {
		return se
	}
	return nil
}

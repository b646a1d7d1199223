package metrics

import (
	"context"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing.
// This interface provides functionality to integrate with tracing systems like OpenTelemetry,
// enabling visualization of run and stage execution flows.
type Tracer interface {
	// StartRunSpan starts a Span for a PipelineRun.
	//
	// Returns: A context with the new Span set, and a function to end the Span.
	StartRunSpan(ctx context.Context, run *model.PipelineRun) (context.Context, func())

	// StartStageSpan starts a Span for a StageExecution.
	//
	// ctx: The parent context (typically a context with a run span).
	StartStageSpan(ctx context.Context, execution *model.StageExecution) (context.Context, func())

	// RecordError records an error in the current Span.
	//
	// module: The name of the component where the error occurred (e.g., "extract", "table").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current Span.
	//
	// attributes: Example: `map[string]interface{}{"rows": 48, "table": "bronze/..."}`
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

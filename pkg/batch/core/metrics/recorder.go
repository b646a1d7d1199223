package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording pipeline metrics.
//
// This facilitates integration with different metrics backends (e.g., Prometheus,
// OpenTelemetry Metrics) without the stages knowing which one is active.
type MetricRecorder interface {
	// RecordRunStart records the start of a PipelineRun.
	RecordRunStart(ctx context.Context, run *model.PipelineRun)

	// RecordRunEnd records the end of a PipelineRun, including its duration and exit status.
	RecordRunEnd(ctx context.Context, run *model.PipelineRun)

	// RecordStageStart records the start of a StageExecution.
	RecordStageStart(ctx context.Context, execution *model.StageExecution)

	// RecordStageEnd records the end of a StageExecution with its read and write counts.
	RecordStageEnd(ctx context.Context, execution *model.StageExecution)

	// RecordRowsWritten records rows committed to a lake table.
	//
	// table: The table location relative to the lake root (e.g., "bronze/api_carbon_intensity/intensity").
	RecordRowsWritten(ctx context.Context, table string, count int)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "source_fetch").
	// tags: Additional attributes. Backends with fixed label sets only use "status".
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// Flusher is implemented by recorders that export their state on demand.
// The pipeline calls Flush once after the last stage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushIfSupported flushes r when it implements Flusher.
func FlushIfSupported(ctx context.Context, r MetricRecorder) error {
	if f, ok := r.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {}
func (r *NoOpMetricRecorder) RecordStageStart(ctx context.Context, se *model.StageExecution) {}
func (r *NoOpMetricRecorder) RecordStageEnd(ctx context.Context, se *model.StageExecution) {}
func (r *NoOpMetricRecorder) RecordRowsWritten(ctx context.Context, table string, count int) {}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// --- NoOpTracer ---

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartRunSpan(ctx context.Context, run *model.PipelineRun) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStageSpan(ctx context.Context, se *model.StageExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)

package metrics

import (
	"context"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
)

// --- Run Listener ---

type MetricsRunListener struct {
	recorder metrics.MetricRecorder
}

func NewMetricsRunListener(recorder metrics.MetricRecorder) *MetricsRunListener {
	return &MetricsRunListener{recorder: recorder}
}

func (l *MetricsRunListener) BeforeRun(ctx context.Context, run *model.PipelineRun) {
	l.recorder.RecordRunStart(ctx, run)
}

func (l *MetricsRunListener) AfterRun(ctx context.Context, run *model.PipelineRun) {
	l.recorder.RecordRunEnd(ctx, run)
}

var _ port.RunListener = (*MetricsRunListener)(nil)

// --- Stage Listener ---

type MetricsStageListener struct {
	recorder metrics.MetricRecorder
}

func NewMetricsStageListener(recorder metrics.MetricRecorder) *MetricsStageListener {
	return &MetricsStageListener{recorder: recorder}
}

func (l *MetricsStageListener) BeforeStage(ctx context.Context, se *model.StageExecution) {
	l.recorder.RecordStageStart(ctx, se)
}

func (l *MetricsStageListener) AfterStage(ctx context.Context, se *model.StageExecution) {
	l.recorder.RecordStageEnd(ctx, se)
}

var _ port.StageListener = (*MetricsStageListener)(nil)

package tracing

import (
	"context"
	"errors"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
)

// TracingStageListener annotates the stage span opened by the runner.
// The context passed in already carries that span.
type TracingStageListener struct {
	tracer metrics.Tracer
}

func NewTracingStageListener(tracer metrics.Tracer) *TracingStageListener {
	return &TracingStageListener{tracer: tracer}
}

func (l *TracingStageListener) BeforeStage(ctx context.Context, se *model.StageExecution) {
	l.tracer.RecordEvent(ctx, "stage.started", map[string]interface{}{
		"stage.id": se.ID,
	})
}

func (l *TracingStageListener) AfterStage(ctx context.Context, se *model.StageExecution) {
	for _, failure := range se.Failures {
		l.tracer.RecordError(ctx, se.StageName, errors.New(failure))
	}
	attrs := map[string]interface{}{
		"exit_status": se.ExitStatus.String(),
		"read_count":  se.ReadCount,
		"write_count": se.WriteCount,
	}
	if se.Message != "" {
		attrs["message"] = se.Message
	}
	l.tracer.RecordEvent(ctx, "stage.finished", attrs)
}

var _ port.StageListener = (*TracingStageListener)(nil)

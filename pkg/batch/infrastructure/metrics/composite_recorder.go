package metrics

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
)

// CompositeRecorder fans every call out to several recorders.
type CompositeRecorder struct {
	recorders []metrics.MetricRecorder
}

// NewCompositeRecorder creates a recorder delegating to recorders in order.
func NewCompositeRecorder(recorders ...metrics.MetricRecorder) *CompositeRecorder {
	return &CompositeRecorder{recorders: recorders}
}

func (c *CompositeRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {
	for _, r := range c.recorders {
		r.RecordRunStart(ctx, run)
	}
}

func (c *CompositeRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {
	for _, r := range c.recorders {
		r.RecordRunEnd(ctx, run)
	}
}

func (c *CompositeRecorder) RecordStageStart(ctx context.Context, execution *model.StageExecution) {
	for _, r := range c.recorders {
		r.RecordStageStart(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordStageEnd(ctx context.Context, execution *model.StageExecution) {
	for _, r := range c.recorders {
		r.RecordStageEnd(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordRowsWritten(ctx context.Context, table string, count int) {
	for _, r := range c.recorders {
		r.RecordRowsWritten(ctx, table, count)
	}
}

func (c *CompositeRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c.recorders {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

// Flush flushes every delegate and aggregates their errors.
func (c *CompositeRecorder) Flush(ctx context.Context) error {
	var result *multierror.Error
	for _, r := range c.recorders {
		if err := metrics.FlushIfSupported(ctx, r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var (
	_ metrics.MetricRecorder = (*CompositeRecorder)(nil)
	_ metrics.Flusher        = (*CompositeRecorder)(nil)
)

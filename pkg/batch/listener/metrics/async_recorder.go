package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// MetricEvent represents a metric event to be recorded asynchronously.
type MetricEvent struct {
	Type           string
	Run            *model.PipelineRun
	StageExecution *model.StageExecution
	Name           string            // Table name for rows written, operation name for durations.
	Count          int
	Duration       time.Duration
	Tags           map[string]string
}

// Metric event type constants
const (
	MetricEventTypeRunStart       = "run_start"
	MetricEventTypeRunEnd         = "run_end"
	MetricEventTypeStageStart     = "stage_start"
	MetricEventTypeStageEnd       = "stage_end"
	MetricEventTypeRowsWritten    = "rows_written"
	MetricEventTypeRecordDuration = "record_duration"
)

// AsyncMetricRecorder asynchronously records metrics by pushing events to a channel
// and processing them in a separate goroutine.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
// bufferSize: The buffer size for the event queue. If 0 or less, a default value is used.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain whatever is still queued before exiting.
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

// processEvent runs with a background context; the caller's context may be gone by now.
func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeRunStart:
		r.syncRecorder.RecordRunStart(ctx, event.Run)
	case MetricEventTypeRunEnd:
		r.syncRecorder.RecordRunEnd(ctx, event.Run)
	case MetricEventTypeStageStart:
		r.syncRecorder.RecordStageStart(ctx, event.StageExecution)
	case MetricEventTypeStageEnd:
		r.syncRecorder.RecordStageEnd(ctx, event.StageExecution)
	case MetricEventTypeRowsWritten:
		r.syncRecorder.RecordRowsWritten(ctx, event.Name, event.Count)
	case MetricEventTypeRecordDuration:
		r.syncRecorder.RecordDuration(ctx, event.Name, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has processed every queued event. It is safe to call more than once.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		logger.Debugf("AsyncMetricRecorder: Sending shutdown signal...")
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

// Flush drains the queue and flushes the wrapped recorder. Events sent after
// Flush are discarded with a warning.
func (r *AsyncMetricRecorder) Flush(ctx context.Context) error {
	r.Close()
	return metrics.FlushIfSupported(ctx, r.syncRecorder)
}

func (r *AsyncMetricRecorder) sendEvent(event MetricEvent, id string) {
	select {
	case <-r.stopCh:
		logger.Warnf("AsyncMetricRecorder: Recorder is closed (type: %s, ID: %s). Event discarded.", event.Type, id)
		return
	default:
	}
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s, ID: %s). Event discarded.", event.Type, id)
	}
}

func (r *AsyncMetricRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunStart, Run: run}, run.ID)
}

func (r *AsyncMetricRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunEnd, Run: run}, run.ID)
}

func (r *AsyncMetricRecorder) RecordStageStart(ctx context.Context, se *model.StageExecution) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeStageStart, StageExecution: se}, se.ID)
}

func (r *AsyncMetricRecorder) RecordStageEnd(ctx context.Context, se *model.StageExecution) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeStageEnd, StageExecution: se}, se.ID)
}

func (r *AsyncMetricRecorder) RecordRowsWritten(ctx context.Context, table string, count int) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRowsWritten, Name: table, Count: count}, table)
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRecordDuration, Name: name, Duration: duration, Tags: tags}, name)
}

var (
	_ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
	_ metrics.Flusher        = (*AsyncMetricRecorder)(nil)
)

// DecorateAsync is an fx.Decorate hook. With metrics.async_buffer_size > 0 it wraps
// the recorder in an AsyncMetricRecorder that is closed on shutdown; otherwise the
// recorder is returned unchanged.
func DecorateAsync(lc fx.Lifecycle, cfg *config.Config, syncRecorder metrics.MetricRecorder) metrics.MetricRecorder {
	bufferSize := cfg.CarbonLake.Metrics.AsyncBufferSize
	if bufferSize <= 0 {
		return syncRecorder
	}
	asyncRecorder := NewAsyncMetricRecorder(bufferSize, syncRecorder)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			asyncRecorder.Close()
			return nil
		},
	})
	logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
	return asyncRecorder
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

func finishedRun(t *testing.T) (*model.PipelineRun, *model.StageExecution) {
	t.Helper()
	run := model.NewPipelineRun("run-1", []string{"extract-intensity"})
	run.MarkAsStarted()
	se := model.NewStageExecution(run, "extract-intensity")
	se.MarkAsStarted()
	se.MarkAsCompleted(model.Completed(48, 47))
	run.MarkAsCompleted(model.ExitStatusCompleted)
	return run, se
}

func TestPrometheusRecorder_FlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "carbonlake.prom")
	r := NewPrometheusRecorder(config.MetricsConfig{TextfilePath: path, JobName: "carbonlake"})
	ctx := context.Background()

	run, se := finishedRun(t)
	r.RecordRunStart(ctx, run)
	r.RecordStageStart(ctx, se)
	r.RecordStageEnd(ctx, se)
	r.RecordRowsWritten(ctx, "bronze/api_carbon_intensity/intensity", 47)
	r.RecordDuration(ctx, "source_fetch", 0, map[string]string{"status": "success"})
	r.RecordRunEnd(ctx, run)

	require.NoError(t, r.Flush(ctx))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `carbonlake_stage_rows_written_total{stage="extract-intensity"} 47`)
	assert.Contains(t, text, `carbonlake_stage_rows_read_total{stage="extract-intensity"} 48`)
	assert.Contains(t, text, `carbonlake_table_rows_written_total{table="bronze/api_carbon_intensity/intensity"} 47`)
	assert.Contains(t, text, `carbonlake_operation_duration_seconds_count{name="source_fetch",status="success"} 1`)
	assert.Contains(t, text, `carbonlake_last_run_timestamp_seconds{exit_status="COMPLETED"}`)
}

func TestPrometheusRecorder_FlushPushesToGateway(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		method, path = req.Method, req.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewPrometheusRecorder(config.MetricsConfig{PushgatewayURL: server.URL, JobName: "carbonlake-test"})
	run, _ := finishedRun(t)
	r.RecordRunEnd(context.Background(), run)

	require.NoError(t, r.Flush(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/carbonlake-test", path)
}

func TestPrometheusRecorder_FlushWithoutTargetsIsNoOp(t *testing.T) {
	r := NewPrometheusRecorder(config.MetricsConfig{})
	assert.NoError(t, r.Flush(context.Background()))
}

func TestOTelRecorder_RecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	r, err := NewOTelRecorderWithReader(reader, resource.Empty())
	require.NoError(t, err)
	ctx := context.Background()

	run, se := finishedRun(t)
	r.RecordStageEnd(ctx, se)
	r.RecordRowsWritten(ctx, "silver/api_carbon_intensity/factors", 12)
	r.RecordDuration(ctx, "source_fetch", 0, map[string]string{"endpoint": "factors"})
	r.RecordRunEnd(ctx, run)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{
		"carbonlake.runs",
		"carbonlake.run.duration",
		"carbonlake.stages",
		"carbonlake.stage.duration",
		"carbonlake.stage.rows",
		"carbonlake.table.rows_written",
		"carbonlake.operation.duration",
	} {
		assert.True(t, names[want], "missing instrument %s", want)
	}
	assert.NoError(t, r.Shutdown(ctx))
}

func TestOpenTelemetryTracer_RunAndStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewOpenTelemetryTracerWithProvider(provider)

	run := model.NewPipelineRun("run-7", []string{"views"})
	run.MarkAsStarted()
	ctx, endRun := tracer.StartRunSpan(context.Background(), run)

	se := model.NewStageExecution(run, "views")
	se.MarkAsStarted()
	stageCtx, endStage := tracer.StartStageSpan(ctx, se)
	tracer.RecordEvent(stageCtx, "table_read", map[string]interface{}{"rows": 3, "table": "silver"})
	boom := errors.New("silver table unreadable")
	tracer.RecordError(stageCtx, "report", boom)
	se.MarkAsFailed(boom)
	endStage()

	run.MarkAsFailed(boom)
	endRun()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	stageSpan, runSpan := spans[0], spans[1]
	assert.Equal(t, "carbonlake.stage.views", stageSpan.Name())
	assert.Equal(t, "carbonlake.run", runSpan.Name())
	assert.Equal(t, runSpan.SpanContext().SpanID(), stageSpan.Parent().SpanID())
	assert.Equal(t, codes.Error, stageSpan.Status().Code)
	assert.Equal(t, codes.Error, runSpan.Status().Code)

	var eventNames []string
	for _, ev := range stageSpan.Events() {
		eventNames = append(eventNames, ev.Name)
	}
	assert.Contains(t, eventNames, "table_read")
	assert.Contains(t, eventNames, "exception")
}

func TestValidateProtocol(t *testing.T) {
	p, err := validateProtocol("")
	require.NoError(t, err)
	assert.Equal(t, "http", p)

	p, err = validateProtocol("GRPC")
	require.NoError(t, err)
	assert.Equal(t, "grpc", p)

	_, err = validateProtocol("kafka")
	assert.Error(t, err)
}

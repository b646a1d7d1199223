package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	logger "github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// OTelRecorder records pipeline metrics with OpenTelemetry instruments.
type OTelRecorder struct {
	provider *sdkmetric.MeterProvider

	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	stages        metric.Int64Counter
	stageDuration metric.Float64Histogram
	stageRows     metric.Int64Counter
	tableRows     metric.Int64Counter
	opDuration    metric.Float64Histogram
}

// NewOTelRecorder creates a recorder that exports over OTLP to cfg.OTLPEndpoint.
func NewOTelRecorder(ctx context.Context, cfg config.TelemetryConfig) (*OTelRecorder, error) {
	protocol, err := validateProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	var exporter sdkmetric.Exporter
	switch protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{}
		if hasScheme(cfg.OTLPEndpoint) {
			opts = append(opts, otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint))
		} else {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	default:
		opts := []otlpmetrichttp.Option{}
		if hasScheme(cfg.OTLPEndpoint) {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(cfg.OTLPEndpoint))
		} else {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter (%s): %w", protocol, err)
	}

	logger.Infof("Metrics: exporting to %s over OTLP/%s.", cfg.OTLPEndpoint, protocol)
	return NewOTelRecorderWithReader(sdkmetric.NewPeriodicReader(exporter), newResource(cfg))
}

// NewOTelRecorderWithReader builds the instruments on a provider fed by reader.
func NewOTelRecorderWithReader(reader sdkmetric.Reader, res *resource.Resource) (*OTelRecorder, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(instrumentationName)

	r := &OTelRecorder{provider: provider}
	var err error
	if r.runs, err = meter.Int64Counter("carbonlake.runs",
		metric.WithDescription("Finished pipeline runs.")); err != nil {
		return nil, err
	}
	if r.runDuration, err = meter.Float64Histogram("carbonlake.run.duration",
		metric.WithDescription("Duration of pipeline runs."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stages, err = meter.Int64Counter("carbonlake.stages",
		metric.WithDescription("Finished stage executions.")); err != nil {
		return nil, err
	}
	if r.stageDuration, err = meter.Float64Histogram("carbonlake.stage.duration",
		metric.WithDescription("Duration of stage executions."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stageRows, err = meter.Int64Counter("carbonlake.stage.rows",
		metric.WithDescription("Rows read or written by stage.")); err != nil {
		return nil, err
	}
	if r.tableRows, err = meter.Int64Counter("carbonlake.table.rows_written",
		metric.WithDescription("Rows committed per lake table.")); err != nil {
		return nil, err
	}
	if r.opDuration, err = meter.Float64Histogram("carbonlake.operation.duration",
		metric.WithDescription("Duration of named operations."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {}

func (r *OTelRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {
	if run.EndTime == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", run.Status.String()),
		attribute.String("exit_status", run.ExitStatus.String()),
	)
	r.runs.Add(ctx, 1, attrs)
	r.runDuration.Record(ctx, run.Duration().Seconds(), attrs)
}

func (r *OTelRecorder) RecordStageStart(ctx context.Context, execution *model.StageExecution) {}

func (r *OTelRecorder) RecordStageEnd(ctx context.Context, execution *model.StageExecution) {
	if execution.EndTime == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", execution.StageName),
		attribute.String("exit_status", execution.ExitStatus.String()),
	)
	r.stages.Add(ctx, 1, attrs)
	r.stageDuration.Record(ctx, execution.Duration().Seconds(), attrs)
	r.stageRows.Add(ctx, int64(execution.ReadCount), metric.WithAttributes(
		attribute.String("stage", execution.StageName), attribute.String("direction", "read")))
	r.stageRows.Add(ctx, int64(execution.WriteCount), metric.WithAttributes(
		attribute.String("stage", execution.StageName), attribute.String("direction", "write")))
}

func (r *OTelRecorder) RecordRowsWritten(ctx context.Context, table string, count int) {
	r.tableRows.Add(ctx, int64(count), metric.WithAttributes(attribute.String("table", table)))
}

func (r *OTelRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	attrs = append(attrs, toAttributes(stringMap(tags))...)
	r.opDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Flush forces an export of everything recorded so far.
func (r *OTelRecorder) Flush(ctx context.Context) error {
	return r.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the meter provider.
func (r *OTelRecorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

func stringMap(tags map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

var (
	_ metrics.MetricRecorder = (*OTelRecorder)(nil)
	_ metrics.Flusher        = (*OTelRecorder)(nil)
)

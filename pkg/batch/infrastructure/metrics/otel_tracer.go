package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	logger "github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer exporting spans over OTLP to cfg.OTLPEndpoint.
func NewOpenTelemetryTracer(ctx context.Context, cfg config.TelemetryConfig) (*OpenTelemetryTracer, error) {
	protocol, err := validateProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	switch protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{}
		if hasScheme(cfg.OTLPEndpoint) {
			opts = append(opts, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint))
		} else {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		opts := []otlptracehttp.Option{}
		if hasScheme(cfg.OTLPEndpoint) {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter (%s): %w", protocol, err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	logger.Infof("Tracer: exporting spans to %s over OTLP/%s (sample ratio %.2f).", cfg.OTLPEndpoint, protocol, ratio)
	return NewOpenTelemetryTracerWithProvider(provider), nil
}

// NewOpenTelemetryTracerWithProvider wraps an already configured provider.
func NewOpenTelemetryTracerWithProvider(provider *sdktrace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
	}
}

// StartRunSpan starts a new span for a PipelineRun.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, run *model.PipelineRun) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "carbonlake.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.StringSlice("run.stages", run.Stages),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("run.exit_status", run.ExitStatus.String()))
		if run.Status == model.StatusFailed {
			span.SetStatus(codes.Error, fmt.Sprintf("%d failure(s)", len(run.Failures)))
		}
		span.End()
	}
}

// StartStageSpan starts a new span for a StageExecution.
func (t *OpenTelemetryTracer) StartStageSpan(ctx context.Context, execution *model.StageExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "carbonlake.stage."+execution.StageName, trace.WithAttributes(
		attribute.String("run.id", execution.RunID),
		attribute.String("stage.name", execution.StageName),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("stage.exit_status", execution.ExitStatus.String()),
			attribute.Int("stage.read_count", execution.ReadCount),
			attribute.Int("stage.write_count", execution.WriteCount),
		)
		if execution.Status == model.StatusFailed {
			span.SetStatus(codes.Error, strings.Join(execution.Failures, "; "))
		}
		span.End()
	}
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

// Shutdown flushes pending spans and stops the exporter.
func (t *OpenTelemetryTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)

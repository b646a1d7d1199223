package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	metrics "github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	logger "github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// Params are the dependencies of the metric recorder and tracer constructors.
type Params struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
}

// NewMetricRecorder provides the Prometheus recorder, combined with an OTLP
// recorder when telemetry.otlp_endpoint is set.
func NewMetricRecorder(p Params) (metrics.MetricRecorder, error) {
	prom := NewPrometheusRecorder(p.Cfg.CarbonLake.Metrics)

	telemetry := p.Cfg.CarbonLake.Telemetry
	if telemetry.OTLPEndpoint == "" {
		return prom, nil
	}
	otelRecorder, err := NewOTelRecorder(context.Background(), telemetry)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: otelRecorder.Shutdown})
	return NewCompositeRecorder(prom, otelRecorder), nil
}

// NewTracer provides an OTLP tracer, or a no-op tracer when no endpoint is configured.
func NewTracer(p Params) (metrics.Tracer, error) {
	telemetry := p.Cfg.CarbonLake.Telemetry
	if telemetry.OTLPEndpoint == "" {
		logger.Debugf("Tracer: no OTLP endpoint configured; tracing disabled.")
		return metrics.NewNoOpTracer(), nil
	}
	tracer, err := NewOpenTelemetryTracer(context.Background(), telemetry)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: tracer.Shutdown})
	return tracer, nil
}

// Module is an Fx module that provides the MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)

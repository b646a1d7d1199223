package metrics

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
)

// Module registers the metrics listeners and the optional asynchronous recorder.
var Module = fx.Options(
	fx.Decorate(DecorateAsync),
	fx.Provide(fx.Annotate(
		NewMetricsRunListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"run_listeners"`),
	)),
	fx.Provide(fx.Annotate(
		NewMetricsStageListener,
		fx.As(new(port.StageListener)),
		fx.ResultTags(`group:"stage_listeners"`),
	)),
)

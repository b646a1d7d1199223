package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
)

// Module registers the logging listeners in the run and stage listener groups.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLoggingRunListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"run_listeners"`),
	)),
	fx.Provide(fx.Annotate(
		NewLoggingStageListener,
		fx.As(new(port.StageListener)),
		fx.ResultTags(`group:"stage_listeners"`),
	)),
)

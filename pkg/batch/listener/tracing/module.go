package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
)

// Module registers the tracing stage listener.
var Module = fx.Provide(fx.Annotate(
	NewTracingStageListener,
	fx.As(new(port.StageListener)),
	fx.ResultTags(`group:"stage_listeners"`),
))

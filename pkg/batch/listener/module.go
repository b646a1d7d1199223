package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/carbonlake/pkg/batch/listener/logging"
	"github.com/tigerroll/carbonlake/pkg/batch/listener/metrics"
	"github.com/tigerroll/carbonlake/pkg/batch/listener/tracing"
)

// Module aggregates all listener modules.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
)

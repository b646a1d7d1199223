package logging

import (
	"context"
	"strings"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// --- Run Listener ---

type LoggingRunListener struct{}

func NewLoggingRunListener() *LoggingRunListener {
	return &LoggingRunListener{}
}

func (l *LoggingRunListener) BeforeRun(ctx context.Context, run *model.PipelineRun) {
	logger.Infof("RunListener: BeforeRun - ID: %s, Stages: %s", run.ID, strings.Join(run.Stages, ","))
}

// AfterRun logs one summary line per stage, then the run result. Failed runs are logged as warnings.
func (l *LoggingRunListener) AfterRun(ctx context.Context, run *model.PipelineRun) {
	for _, se := range run.StageExecutions {
		logger.Infof("  stage %-18s %-9s read=%d written=%d duration=%s %s",
			se.StageName, se.ExitStatus, se.ReadCount, se.WriteCount, se.Duration(), se.Message)
	}
	if run.Status == model.StatusCompleted {
		logger.Infof("RunListener: AfterRun - ID: %s, Status: %s, ExitStatus: %s, Duration: %s",
			run.ID, run.Status, run.ExitStatus, run.Duration())
		return
	}
	logger.Warnf("RunListener: AfterRun - ID: %s, Status: %s, ExitStatus: %s, Duration: %s, Failures: %d",
		run.ID, run.Status, run.ExitStatus, run.Duration(), len(run.Failures))
}

var _ port.RunListener = (*LoggingRunListener)(nil)

// --- Stage Listener ---

type LoggingStageListener struct{}

func NewLoggingStageListener() *LoggingStageListener {
	return &LoggingStageListener{}
}

func (l *LoggingStageListener) BeforeStage(ctx context.Context, se *model.StageExecution) {
	logger.Infof("StageListener: BeforeStage - StageName: %s, ID: %s", se.StageName, se.ID)
}

func (l *LoggingStageListener) AfterStage(ctx context.Context, se *model.StageExecution) {
	switch se.ExitStatus {
	case model.ExitStatusFailed:
		logger.Errorf("StageListener: AfterStage - StageName: %s, Status: %s, ExitStatus: %s, Failures: %s",
			se.StageName, se.Status, se.ExitStatus, strings.Join(se.Failures, "; "))
	case model.ExitStatusNoOp:
		logger.Infof("StageListener: AfterStage - StageName: %s, ExitStatus: %s (%s)", se.StageName, se.ExitStatus, se.Message)
	default:
		logger.Infof("StageListener: AfterStage - StageName: %s, Status: %s, ExitStatus: %s, Read: %d, Write: %d",
			se.StageName, se.Status, se.ExitStatus, se.ReadCount, se.WriteCount)
	}
}

var _ port.StageListener = (*LoggingStageListener)(nil)

package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	port "github.com/tigerroll/carbonlake/pkg/batch/core/application/port"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/carbonlake/pkg/batch/core/domain/repository"
	"github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// Runner executes the selected stages one after another. A failing stage
// is recorded and the next stage still runs.
type Runner struct {
	stages         []port.Stage
	repo           repository.RunRepository
	tracer         metrics.Tracer
	recorder       metrics.MetricRecorder
	runListeners   []port.RunListener
	stageListeners []port.StageListener
}

// RunnerParams are the dependencies of NewRunner.
type RunnerParams struct {
	fx.In
	Stages         []port.Stage
	Repo           repository.RunRepository
	Tracer         metrics.Tracer         `optional:"true"`
	Recorder       metrics.MetricRecorder `optional:"true"`
	RunListeners   []port.RunListener     `group:"run_listeners"`
	StageListeners []port.StageListener   `group:"stage_listeners"`
}

// NewRunner creates a Runner.
func NewRunner(p RunnerParams) *Runner {
	if p.Tracer == nil {
		p.Tracer = metrics.NewNoOpTracer()
	}
	if p.Recorder == nil {
		p.Recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Runner{
		stages:         p.Stages,
		repo:           p.Repo,
		tracer:         p.Tracer,
		recorder:       p.Recorder,
		runListeners:   p.RunListeners,
		stageListeners: p.StageListeners,
	}
}

// Stages returns the registered stages in execution order.
func (r *Runner) Stages() []string {
	return namesOf(r.stages)
}

// Run executes the stages named in names (all when empty) as one
// PipelineRun. The returned error aggregates every stage failure; the run
// is returned whenever it was started.
func (r *Runner) Run(ctx context.Context, names []string) (*model.PipelineRun, error) {
	selected, err := Select(r.stages, names)
	if err != nil {
		return nil, err
	}

	run := model.NewPipelineRun(model.NewID(), namesOf(selected))
	logger.SetRunID(run.ID)
	defer logger.SetRunID("")

	if err := r.repo.SavePipelineRun(ctx, run); err != nil {
		logger.Errorf("Runner: Failed to save PipelineRun (ID: %s): %v", run.ID, err)
	}

	ctx, endRunSpan := r.tracer.StartRunSpan(ctx, run)
	run.MarkAsStarted()
	r.updateRun(ctx, run)
	for _, l := range r.runListeners {
		l.BeforeRun(ctx, run)
	}

	var errs *multierror.Error
	noop := true
	for i, stage := range selected {
		if ctxErr := ctx.Err(); ctxErr != nil {
			skipped := namesOf(selected[i:])
			errs = multierror.Append(errs, fmt.Errorf("run cancelled before stages %v: %w", skipped, ctxErr))
			break
		}
		se, stageErr := r.runStage(ctx, run, stage)
		if stageErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("stage %s: %w", se.StageName, stageErr))
		} else if se.ExitStatus == model.ExitStatusCompleted {
			noop = false
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		run.MarkAsFailed(err)
	} else if noop {
		run.MarkAsCompleted(model.ExitStatusNoOp)
	} else {
		run.MarkAsCompleted(model.ExitStatusCompleted)
	}

	for _, l := range r.runListeners {
		l.AfterRun(ctx, run)
	}
	endRunSpan()
	r.updateRun(ctx, run)

	if err := metrics.FlushIfSupported(context.WithoutCancel(ctx), r.recorder); err != nil {
		logger.Warnf("Runner: Failed to flush metrics: %v", err)
	}
	return run, errs.ErrorOrNil()
}

func (r *Runner) runStage(ctx context.Context, run *model.PipelineRun, stage port.Stage) (*model.StageExecution, error) {
	se := model.NewStageExecution(run, stage.Name())
	if err := r.repo.SaveStageExecution(ctx, se); err != nil {
		logger.Errorf("Runner: Failed to save StageExecution '%s': %v", se.StageName, err)
	}

	sctx, endSpan := r.tracer.StartStageSpan(ctx, se)
	sctx = port.ContextWithStageExecution(sctx, se)
	se.MarkAsStarted()
	for _, l := range r.stageListeners {
		l.BeforeStage(sctx, se)
	}

	outcome, err := execute(sctx, stage)
	if err != nil {
		se.MarkAsFailed(err)
	} else {
		se.MarkAsCompleted(outcome)
	}

	for _, l := range r.stageListeners {
		l.AfterStage(sctx, se)
	}
	endSpan()

	if uerr := r.repo.UpdateStageExecution(context.WithoutCancel(ctx), se); uerr != nil {
		logger.Errorf("Runner: Failed to update StageExecution '%s': %v", se.StageName, uerr)
	}
	return se, err
}

func (r *Runner) updateRun(ctx context.Context, run *model.PipelineRun) {
	if err := r.repo.UpdatePipelineRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Errorf("Runner: Failed to update PipelineRun (ID: %s): %v", run.ID, err)
	}
}

package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/repository"
	"github.com/tigerroll/carbonlake/pkg/batch/infrastructure/repository/inmemory"
)

func TestInMemoryRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryRunRepository()

	run := model.NewPipelineRun("run-1", []string{"extract-factors"})
	require.NoError(t, repo.SavePipelineRun(ctx, run))
	assert.Error(t, repo.SavePipelineRun(ctx, run))

	se := model.NewStageExecution(run, "extract-factors")
	require.NoError(t, repo.SaveStageExecution(ctx, se))
	se.MarkAsStarted()
	se.MarkAsCompleted(model.NoOp("empty catalog"))
	require.NoError(t, repo.UpdateStageExecution(ctx, se))
	assert.Equal(t, 1, se.Version)

	run.MarkAsStarted()
	run.MarkAsCompleted(model.ExitStatusNoOp)
	require.NoError(t, repo.UpdatePipelineRun(ctx, run))

	loaded, err := repo.FindPipelineRunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, loaded.ExitStatus)
	require.Len(t, loaded.StageExecutions, 1)
	assert.Equal(t, "empty catalog", loaded.StageExecutions[0].Message)

	// Mutating the caller's copy must not leak into the stored record.
	run.Stages[0] = "changed"
	again, err := repo.FindPipelineRunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "extract-factors", again.Stages[0])
}

func TestInMemoryRunRepository_VersionsAndOrdering(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryRunRepository()

	_, err := repo.FindPipelineRunByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrPipelineRunNotFound)

	a := model.NewPipelineRun("a", nil)
	a.StartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := model.NewPipelineRun("b", nil)
	b.StartTime = a.StartTime.Add(time.Hour)
	require.NoError(t, repo.SavePipelineRun(ctx, a))
	require.NoError(t, repo.SavePipelineRun(ctx, b))

	runs, err := repo.FindRecentPipelineRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)

	stale := *a
	require.NoError(t, repo.UpdatePipelineRun(ctx, a))
	assert.ErrorIs(t, repo.UpdatePipelineRun(ctx, &stale), repository.ErrOptimisticLock)
}

package sql_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/carbonlake/pkg/batch/infrastructure/repository/sql"
)

func newRepository(t *testing.T) *sqlrepo.SQLRunRepository {
	t.Helper()
	cfg := config.NewConfig()
	cfg.CarbonLake.AdapterConfigs = map[string]interface{}{
		"database": map[string]interface{}{
			"history": map[string]interface{}{
				"type":     "sqlite",
				"database": filepath.Join(t.TempDir(), "history.db"),
			},
		},
	}
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { resolver.CloseAll() })

	repo := sqlrepo.NewSQLRunRepository(resolver, "history")
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestSQLRunRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	run := model.NewPipelineRun(model.NewID(), []string{"extract-intensity", "views"})
	run.MarkAsStarted()
	require.NoError(t, repo.SavePipelineRun(ctx, run))

	first := model.NewStageExecution(run, "extract-intensity")
	first.MarkAsStarted()
	require.NoError(t, repo.SaveStageExecution(ctx, first))
	first.MarkAsCompleted(model.Completed(48, 48))
	require.NoError(t, repo.UpdateStageExecution(ctx, first))

	time.Sleep(2 * time.Millisecond)
	second := model.NewStageExecution(run, "views")
	second.MarkAsStarted()
	require.NoError(t, repo.SaveStageExecution(ctx, second))
	second.MarkAsFailed(errors.New("silver table unreadable"))
	require.NoError(t, repo.UpdateStageExecution(ctx, second))

	run.MarkAsFailed(errors.New("1 stage failed"))
	require.NoError(t, repo.UpdatePipelineRun(ctx, run))
	assert.Equal(t, 1, run.Version)

	loaded, err := repo.FindPipelineRunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"extract-intensity", "views"}, loaded.Stages)
	assert.Equal(t, model.StatusFailed, loaded.Status)
	assert.Equal(t, model.ExitStatusFailed, loaded.ExitStatus)
	assert.Equal(t, model.FailureList{"1 stage failed"}, loaded.Failures)
	require.NotNil(t, loaded.EndTime)

	require.Len(t, loaded.StageExecutions, 2)
	assert.Equal(t, "extract-intensity", loaded.StageExecutions[0].StageName)
	assert.Equal(t, model.ExitStatusCompleted, loaded.StageExecutions[0].ExitStatus)
	assert.Equal(t, 48, loaded.StageExecutions[0].WriteCount)
	assert.Equal(t, model.FailureList{"silver table unreadable"}, loaded.StageExecutions[1].Failures)
}

func TestSQLRunRepository_StaleVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	run := model.NewPipelineRun(model.NewID(), []string{"views"})
	require.NoError(t, repo.SavePipelineRun(ctx, run))
	require.NoError(t, repo.UpdatePipelineRun(ctx, run))

	stale := *run
	stale.Version = 0
	err := repo.UpdatePipelineRun(ctx, &stale)
	require.ErrorIs(t, err, repository.ErrOptimisticLock)
	assert.Equal(t, 0, stale.Version)
}

func TestSQLRunRepository_FindMissingAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	_, err := repo.FindPipelineRunByID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, repository.ErrPipelineRunNotFound)

	older := model.NewPipelineRun("run-a", []string{"views"})
	require.NoError(t, repo.SavePipelineRun(ctx, older))
	time.Sleep(2 * time.Millisecond)
	newer := model.NewPipelineRun("run-b", []string{"views"})
	require.NoError(t, repo.SavePipelineRun(ctx, newer))

	runs, err := repo.FindRecentPipelineRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-b", runs[0].ID)
}

func TestSQLRunRepository_MigrateIsIdempotent(t *testing.T) {
	repo := newRepository(t)
	assert.NoError(t, repo.Migrate(context.Background()))
}

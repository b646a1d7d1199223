package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/carbonlake/pkg/batch/core/domain/repository"
	"github.com/tigerroll/carbonlake/pkg/batch/infrastructure/repository/sql/migration"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// SQLRunRepository implements repository.RunRepository on a gorm connection.
type SQLRunRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the adapter.database entry holding the history tables (e.g., "history").
	dbName string
}

// NewSQLRunRepository creates a new instance of SQLRunRepository.
func NewSQLRunRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRunRepository {
	return &SQLRunRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
	}
}

func (r *SQLRunRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError("SQLRunRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

// Migrate applies the embedded schema migrations for the connection's dialect.
func (r *SQLRunRepository) Migrate(ctx context.Context) error {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	return migration.NewMigrator(conn).Up(ctx, migration.FS(), conn.Type())
}

func (r *SQLRunRepository) SavePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	const op = "SQLRunRepository.SavePipelineRun"
	entity := fromDomainPipelineRun(run)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		if conn.IsTableNotExistError(err) {
			logger.Warnf("%s: history tables are missing; run %s is not recorded.", op, run.ID)
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to save PipelineRun (ID: %s)", run.ID), err, false, true)
	}
	return nil
}

func (r *SQLRunRepository) UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error {
	const op = "SQLRunRepository.UpdatePipelineRun"

	originalVersion := run.Version
	run.Version++
	run.LastUpdated = time.Now()
	entity := fromDomainPipelineRun(run)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		run.Version = originalVersion
		return err
	}
	rowsAffected, err := conn.ExecuteUpdate(ctx, entity, "UPDATE", entity.TableName(), map[string]interface{}{"version": originalVersion})
	if err != nil {
		run.Version = originalVersion
		if conn.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to update PipelineRun (ID: %s)", run.ID), err, false, true)
	}
	if rowsAffected == 0 {
		run.Version = originalVersion
		return fmt.Errorf("%s: PipelineRun (ID: %s) with version %d: %w", op, run.ID, originalVersion, repository.ErrOptimisticLock)
	}
	return nil
}

func (r *SQLRunRepository) FindPipelineRunByID(ctx context.Context, id string) (*model.PipelineRun, error) {
	const op = "SQLRunRepository.FindPipelineRunByID"
	var entities []PipelineRunEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrPipelineRunNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find PipelineRun by ID: %s", id), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrPipelineRunNotFound
	}

	run := toDomainPipelineRun(&entities[0])
	stages, err := r.FindStageExecutionsByRunID(ctx, id)
	if err != nil {
		logger.Errorf("%s: Failed to load StageExecutions for PipelineRun (ID: %s): %v", op, id, err)
	} else {
		run.StageExecutions = stages
	}
	return run, nil
}

func (r *SQLRunRepository) FindRecentPipelineRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	const op = "SQLRunRepository.FindRecentPipelineRuns"
	var entities []PipelineRunEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, nil, "start_time desc", limit); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.PipelineRun{}, nil
		}
		return nil, exception.NewBatchError(op, "failed to list pipeline runs", err, false, true)
	}
	runs := make([]*model.PipelineRun, len(entities))
	for i := range entities {
		runs[i] = toDomainPipelineRun(&entities[i])
	}
	return runs, nil
}

func (r *SQLRunRepository) SaveStageExecution(ctx context.Context, se *model.StageExecution) error {
	const op = "SQLRunRepository.SaveStageExecution"
	entity := fromDomainStageExecution(se)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StageExecution (ID: %s)", se.ID), err, false, true)
	}
	return nil
}

func (r *SQLRunRepository) UpdateStageExecution(ctx context.Context, se *model.StageExecution) error {
	const op = "SQLRunRepository.UpdateStageExecution"

	originalVersion := se.Version
	se.Version++
	se.LastUpdated = time.Now()
	entity := fromDomainStageExecution(se)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		se.Version = originalVersion
		return err
	}
	rowsAffected, err := conn.ExecuteUpdate(ctx, entity, "UPDATE", entity.TableName(), map[string]interface{}{"version": originalVersion})
	if err != nil {
		se.Version = originalVersion
		if conn.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StageExecution (ID: %s)", se.ID), err, false, true)
	}
	if rowsAffected == 0 {
		se.Version = originalVersion
		return fmt.Errorf("%s: StageExecution (ID: %s) with version %d: %w", op, se.ID, originalVersion, repository.ErrOptimisticLock)
	}
	return nil
}

func (r *SQLRunRepository) FindStageExecutionsByRunID(ctx context.Context, runID string) ([]*model.StageExecution, error) {
	const op = "SQLRunRepository.FindStageExecutionsByRunID"
	var entities []StageExecutionEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"run_id": runID}, "start_time asc", 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.StageExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StageExecutions by run ID: %s", runID), err, false, true)
	}
	stages := make([]*model.StageExecution, len(entities))
	for i := range entities {
		stages[i] = toDomainStageExecution(&entities[i])
	}
	return stages, nil
}

// Close implements repository.RunRepository. Connections belong to their provider.
func (r *SQLRunRepository) Close() error {
	return nil
}

var _ repository.RunRepository = (*SQLRunRepository)(nil)

// Package repository selects the run-history backend.
package repository

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	domain "github.com/tigerroll/carbonlake/pkg/batch/core/domain/repository"
	"github.com/tigerroll/carbonlake/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/carbonlake/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// Params are the dependencies of NewRunRepository.
type Params struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Cfg        *config.Config
	DBResolver database.DBConnectionResolver
}

// NewRunRepository returns the SQL repository when history is enabled and the
// in-memory one otherwise. The SQL schema is migrated when the app starts.
func NewRunRepository(p Params) domain.RunRepository {
	history := p.Cfg.CarbonLake.History
	if !history.Enabled {
		logger.Debugf("Run history disabled; runs are kept in memory only.")
		return inmemory.NewInMemoryRunRepository()
	}

	repo := sqlrepo.NewSQLRunRepository(p.DBResolver, history.DBRef)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return repo.Migrate(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return repo.Close()
		},
	})
	return repo
}

// Module provides domain.RunRepository.
var Module = fx.Provide(NewRunRepository)

// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

// ProviderType is the adapter.database.<name>.type handled here.
const ProviderType = "sqlite"

func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the DSN for cfg. Foreign keys are enabled and
// concurrent writers wait instead of failing immediately.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.Database == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	return "file:" + c.Database + "?_foreign_keys=on&_busy_timeout=5000"
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, ProviderType)}
}

// Module registers the SQLite provider in the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)

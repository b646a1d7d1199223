// Package database defines the contracts of the run-history database adapters.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/carbonlake/pkg/batch/core/adapter"
)

// DBExecutor defines the read and write operations the repositories rely on.
type DBExecutor interface {
	// ExecuteUpdate performs a write operation ("CREATE", "UPDATE" or "DELETE").
	// For UPDATE, query is applied as an additional WHERE clause, which is how
	// optimistic locking on the version column is expressed.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteQueryAdvanced executes a SELECT with optional ordering and limit.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// Count counts the records matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)
}

// DBConnection represents a named database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the pool to verify the connection is usable.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a database connection by its configured name.
type DBConnectionResolver interface {
	// ResolveDBConnection returns a healthy connection, reconnecting if the pool is unusable.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite").
	Type() string
	// ForceReconnect closes and re-opens the named connection.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group all DBProvider implementations join.
const DBProviderGroup = "db_providers"

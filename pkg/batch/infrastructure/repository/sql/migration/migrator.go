// Package migration applies the run-history schema with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// MigrationsTable tracks the applied schema version.
const MigrationsTable = "carbonlake_schema_migrations"

//go:embed resource
var rawMigrationFS embed.FS

// FS returns the embedded migrations, one directory per dialect.
func FS() fs.FS {
	sub, err := fs.Sub(rawMigrationFS, "resource")
	if err != nil {
		// The directory is embedded at build time.
		panic(fmt.Sprintf("migration resources missing: %v", err))
	}
	return sub
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Up applies all pending migrations under path.
	Up(ctx context.Context, migrationFS fs.FS, path string) error
	// Down rolls back all applied migrations under path.
	Down(ctx context.Context, migrationFS fs.FS, path string) error
}

type migratorImpl struct {
	dbConn    database.DBConnection
	dbType    string
	tableName string
}

// NewMigrator creates a Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{
		dbConn:    dbConn,
		dbType:    dbConn.Type(),
		tableName: MigrationsTable,
	}
}

func (m *migratorImpl) databaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: m.tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) newInstance(migrationFS fs.FS, path string) (*migrate.Migrate, source.Driver, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		sourceDriver.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return instance, sourceDriver, nil
}

func (m *migratorImpl) run(ctx context.Context, migrationFS fs.FS, path, command string) error {
	logger.Infof("Executing migration '%s' (Path: %s, Table: %s)", command, path, m.tableName)

	instance, sourceDriver, err := m.newInstance(migrationFS, path)
	if err != nil {
		return err
	}
	// Only the source is closed: migrate.Close would also close the shared
	// *sql.DB, which belongs to the DB provider.
	defer func() {
		if srcErr := sourceDriver.Close(); srcErr != nil {
			logger.Debugf("Closing migration source failed: %v", srcErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			instance.GracefulStop <- true
		case <-done:
		}
	}()

	switch command {
	case "up":
		err = instance.Up()
	case "down":
		err = instance.Down()
	default:
		return fmt.Errorf("unsupported migration command: %s", command)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed for command '%s' (DB: %s, Path: %s): %w", command, m.dbType, path, err)
	}

	version, dirty, verr := instance.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		logger.Infof("Migration '%s' completed; no schema version applied.", command)
	case verr != nil:
		logger.Warnf("Migration '%s' completed but the version could not be read: %v", command, verr)
	default:
		logger.Infof("Migration '%s' completed at version %d (dirty: %t).", command, version, dirty)
	}
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string) error {
	return m.run(ctx, migrationFS, path, "up")
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string) error {
	return m.run(ctx, migrationFS, path, "down")
}

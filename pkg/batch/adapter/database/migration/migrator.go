// Package migration applies versioned SQL schema migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// DefaultMigrationsTable tracks applied schema versions.
const DefaultMigrationsTable = "weatherflow_schema_migrations"

// Migrator applies migrations found under a path of an fs.FS.
type Migrator struct {
	conn  database.DBConnection
	table string
}

// NewMigrator creates a Migrator for conn. An empty table uses DefaultMigrationsTable.
func NewMigrator(conn database.DBConnection, table string) *Migrator {
	if table == "" {
		table = DefaultMigrationsTable
	}
	return &Migrator{conn: conn, table: table}
}

// Up applies every pending migration. Already being at the latest version is not an error.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, path string) error {
	return m.run(ctx, migrationFS, path, "up", func(mi *migrate.Migrate) error { return mi.Up() })
}

// Down rolls back every applied migration.
func (m *Migrator) Down(ctx context.Context, migrationFS fs.FS, path string) error {
	return m.run(ctx, migrationFS, path, "down", func(mi *migrate.Migrate) error { return mi.Down() })
}

// Version reports the current schema version and whether the last migration left it dirty.
func (m *Migrator) Version(ctx context.Context, migrationFS fs.FS, path string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(ctx, migrationFS, path, "version", func(mi *migrate.Migrate) error {
		var err error
		version, dirty, err = mi.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

// run opens a dedicated pool, because closing a migrate instance closes the *sql.DB it was given.
func (m *Migrator) run(ctx context.Context, migrationFS fs.FS, path, command string, fn func(*migrate.Migrate) error) error {
	cfg := m.conn.Config()
	logger.Infof("Executing migration '%s' (connection: %s, path: %s, table: %s).", command, m.conn.Name(), path, m.table)

	gdb, err := gormadapter.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open migration connection for '%s': %w", m.conn.Name(), err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to ping migration connection: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(cfg.Type, sqlDB)
	if err != nil {
		sourceDriver.Close()
		sqlDB.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	mi, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Type, dbDriver)
	if err != nil {
		sourceDriver.Close()
		dbDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := mi.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("Failed to close migrate instance: source=%v, database=%v", srcErr, dbErr)
		}
	}()

	if err := fn(mi); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed (db: %s, path: %s): %w", command, cfg.Type, path, err)
	}
	logger.Infof("Migration '%s' completed.", command)
	return nil
}

func (m *Migrator) databaseDriver(dbType string, sqlDB *sql.DB) (migratedb.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.table})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: m.table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

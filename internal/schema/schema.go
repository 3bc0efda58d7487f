// Package schema embeds the SQL migrations of the pipeline tables.
package schema

import (
	"context"
	"embed"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database/migration"
)

// MigrationsPath is the directory inside FS holding the migration files.
const MigrationsPath = "migrations"

//go:embed migrations/*.sql
var FS embed.FS

// Migrate applies every pending migration to conn.
func Migrate(ctx context.Context, conn database.DBConnection) error {
	return migration.NewMigrator(conn, migration.DefaultMigrationsTable).Up(ctx, FS, MigrationsPath)
}

// Version returns the applied schema version of conn.
func Version(ctx context.Context, conn database.DBConnection) (uint, bool, error) {
	return migration.NewMigrator(conn, migration.DefaultMigrationsTable).Version(ctx, FS, MigrationsPath)
}

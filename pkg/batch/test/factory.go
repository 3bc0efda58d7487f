// Package test provides database fixtures shared by package tests.
package test

import (
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbadapter "github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm/sqlite"
)

// NewSQLiteConnection opens a file-backed SQLite database in a temporary directory.
// The connection is closed when the test ends.
func NewSQLiteConnection(t testing.TB, name string) dbadapter.DBConnection {
	t.Helper()
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), name+".db")}
	gdb, err := gormadapter.Open(cfg)
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(gdb, cfg, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewSQLMockConnection wraps a go-sqlmock database with the MySQL dialector.
// Unmet expectations fail the test when it ends.
func NewSQLMockConnection(t testing.TB) (dbadapter.DBConnection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gdb, dbconfig.DatabaseConfig{Type: "mysql", Database: "mock"}, "mock")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return conn, mock
}

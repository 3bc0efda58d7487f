package sql_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/weatherflow/pkg/batch/infrastructure/repository/sql"
)

type staticResolver struct {
	conn database.DBConnection
}

func (r staticResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func newRepo(t *testing.T, migrate bool) *sqlrepo.SQLUnitExecutionRepository {
	t.Helper()
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: filepath.Join(t.TempDir(), "meta.db")}
	gdb, err := gormadapter.Open(cfg)
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(gdb, cfg, "default")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	if migrate {
		require.NoError(t, gdb.AutoMigrate(&model.UnitExecution{}))
	}
	return sqlrepo.NewSQLUnitExecutionRepository(staticResolver{conn: conn}, "default")
}

func TestSQLUnitExecutionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, true)
	runDate := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	first := model.NewUnitExecution("ingestion", runDate)
	require.NoError(t, repo.SaveUnitExecution(ctx, first))
	require.NoError(t, first.TransitionTo(model.UnitStatusFetching))
	first.MarkFailed(errors.New("api down"))
	require.NoError(t, repo.UpdateUnitExecution(ctx, first))

	second := model.NewUnitExecution("ingestion", runDate)
	second.StartTime = first.StartTime.Add(time.Minute)
	require.NoError(t, repo.SaveUnitExecution(ctx, second))
	require.NoError(t, second.TransitionTo(model.UnitStatusFetching))
	second.AddRowsWritten(24)
	second.MarkDone(false)
	require.NoError(t, repo.UpdateUnitExecution(ctx, second))

	found, err := repo.FindUnitExecutionByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusFailed, found.Status)
	assert.Equal(t, "api down", found.ExitMessage)

	latest, err := repo.FindLatestUnitExecution(ctx, "ingestion", runDate)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, int64(24), latest.RowsWritten)
	assert.Equal(t, model.ExitStatusCompleted, latest.ExitStatus)

	_, err = repo.FindLatestUnitExecution(ctx, "daily_prep", runDate)
	assert.ErrorIs(t, err, repository.ErrUnitExecutionNotFound)

	all, err := repo.ListUnitExecutions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.ID, all[0].ID)
}

func TestSQLUnitExecutionRepository_UpdateUnknown(t *testing.T) {
	repo := newRepo(t, true)
	err := repo.UpdateUnitExecution(context.Background(), model.NewUnitExecution("forecast", time.Now()))
	assert.ErrorIs(t, err, repository.ErrUnitExecutionNotFound)
}

func TestSQLUnitExecutionRepository_MissingTableIsTolerated(t *testing.T) {
	repo := newRepo(t, false)
	assert.NoError(t, repo.SaveUnitExecution(context.Background(), model.NewUnitExecution("monitoring", time.Now())))
}

package job_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/entity"
	dmodel "github.com/tigerroll/weatherflow/internal/domain/model"
	"github.com/tigerroll/weatherflow/internal/forecast"
	"github.com/tigerroll/weatherflow/internal/job"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/internal/schema"
	"github.com/tigerroll/weatherflow/internal/step/reader"
	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	model "github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/weatherflow/pkg/batch/core/metrics"
	"github.com/tigerroll/weatherflow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/weatherflow/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/weatherflow/pkg/batch/support/cache"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/weatherflow/pkg/batch/test"
)

const cairo int64 = 75354428

var runDate = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	day   time.Time
	temps []float64
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, req reader.FetchRequest) (*dmodel.RawBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	times := make([]string, len(f.temps))
	values := make([]*float64, len(f.temps))
	for i := range f.temps {
		times[i] = f.day.Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04")
		values[i] = &f.temps[i]
	}
	return &dmodel.RawBatch{
		Timezone: "Africa/Cairo",
		Hourly:   dmodel.HourlySeries{Time: times, Values: map[string][]*float64{config.TemperatureVariable: values}},
	}, nil
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func migrated(t *testing.T) database.DBConnection {
	t.Helper()
	conn := testutil.NewSQLiteConnection(t, "pipeline")
	require.NoError(t, schema.Migrate(context.Background(), conn))
	return conn
}

func newDeps(conn database.DBConnection) (job.Deps, *inmemory.InMemoryUnitExecutionRepository) {
	cfg := config.NewConfig()
	fast := retry.Policy{MaxAttempts: 2}
	cfg.Policies = config.PoliciesConfig{Fetch: fast, Transform: fast, Store: fast, Query: fast, Forecast: fast, Monitor: fast}
	execs := inmemory.NewInMemoryUnitExecutionRepository()
	r := runner.NewUnitRunner(testutil.NewTestSingleConnectionResolver(conn), "default", execs,
		metrics.NewNoOpMetricRecorder(), metrics.NewNoOpTracer())
	return job.Deps{Runner: r, Repo: repository.NewWeatherRepository(), Config: cfg}, execs
}

func count[T any](t *testing.T, conn database.DBConnection) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.DB().Model(new(T)).Count(&n).Error)
	return n
}

func TestDailyJob_EndToEnd(t *testing.T) {
	ctx := context.Background()
	conn := migrated(t)
	deps, execs := newDeps(conn)
	fetcher := &fakeFetcher{day: runDate, temps: repeat(10.0, 24)}
	daily := job.NewDailyJob(job.NewIngestionUnit(deps, fetcher), job.NewDailyPrepUnit(deps))

	require.NoError(t, daily.Run(ctx, runDate))
	require.NoError(t, daily.Run(ctx, runDate))

	var hourly []entity.HourlyReading
	require.NoError(t, conn.DB().Order("reading_timestamp").Find(&hourly).Error)
	require.Len(t, hourly, 24)
	for _, h := range hourly {
		assert.Equal(t, cairo, h.LocationID)
		assert.Equal(t, "Africa/Cairo", h.Timezone)
		assert.Equal(t, 10.0, h.Temperature)
	}
	assert.True(t, hourly[0].ReadingTimestamp.Equal(runDate))

	var rows []entity.DailyReading
	require.NoError(t, conn.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, cairo, rows[0].LocationID)
	assert.True(t, rows[0].ReadingDate.Equal(runDate))
	assert.InDelta(t, 10.0, rows[0].Temperature, 1e-9)

	latest, err := execs.FindLatestUnitExecution(ctx, job.UnitIngestion, runDate)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusDone, latest.Status)
	assert.Equal(t, int64(24), latest.RowsWritten)
}

func TestIngestionUnit_MemoizesFetch(t *testing.T) {
	ctx := context.Background()
	conn := migrated(t)
	deps, _ := newDeps(conn)
	deps.Cache = cache.NewMemoryCache()
	fetcher := &fakeFetcher{day: runDate, temps: repeat(12.5, 24)}
	unit := job.NewIngestionUnit(deps, fetcher)

	_, err := unit.Run(ctx, runDate)
	require.NoError(t, err)
	_, err = unit.Run(ctx, runDate)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, int64(24), count[entity.HourlyReading](t, conn))
}

func TestIngestionUnit_IncompleteFetchFailsAfterRetries(t *testing.T) {
	conn := migrated(t)
	deps, _ := newDeps(conn)
	fetcher := &fakeFetcher{err: exception.NewIncompleteDataError(reader.ModuleOpenMeteoReader, 23, 24, 0)}

	exec, err := job.NewIngestionUnit(deps, fetcher).Run(context.Background(), runDate)

	assert.ErrorIs(t, err, exception.ErrIncompleteData)
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, model.UnitStatusFailed, exec.Status)
	assert.Zero(t, count[entity.HourlyReading](t, conn))
}

func TestIngestionUnit_FailedReconcileSkipsInsert(t *testing.T) {
	conn, mock := testutil.NewSQLMockConnection(t)
	deps, _ := newDeps(conn)
	deps.Config.Policies.Store = retry.NoRetry
	mock.ExpectExec("DELETE FROM `hourly_weather_data`").WillReturnError(errors.New("connection reset by peer"))

	exec, err := job.NewIngestionUnit(deps, &fakeFetcher{day: runDate, temps: repeat(10, 24)}).Run(context.Background(), runDate)

	assert.ErrorIs(t, err, exception.ErrTransientExternal)
	assert.Equal(t, model.UnitStatusFailed, exec.Status)
	assert.Zero(t, exec.RowsWritten)
}

func TestPipeline_NotReadyBlocksDownstream(t *testing.T) {
	ctx := context.Background()
	conn := migrated(t)
	deps, _ := newDeps(conn)
	// The API answers with the previous day, so nothing lands on the run date.
	fetcher := &fakeFetcher{day: runDate.AddDate(0, 0, -1), temps: repeat(10, 24)}
	loads := 0
	loader := func() (forecast.Model, error) {
		loads++
		return nil, errors.New("must not be called")
	}
	p := job.NewPipeline(
		job.NewDailyJob(job.NewIngestionUnit(deps, fetcher), job.NewDailyPrepUnit(deps)),
		job.NewForecastUnit(deps, loader),
		job.NewMonitoringUnit(deps),
	)

	err := p.Run(ctx, runDate, true, true)

	assert.ErrorIs(t, err, exception.ErrDailyPrepFailure)
	assert.True(t, exception.IsFatal(err))
	assert.Zero(t, loads)
	assert.Equal(t, int64(24), count[entity.HourlyReading](t, conn))
	assert.Zero(t, count[entity.DailyReading](t, conn))
	assert.Zero(t, count[entity.MonitoringRecord](t, conn))
}

func TestDailyPrepUnit_NotReadyIsNotAnError(t *testing.T) {
	conn := migrated(t)
	deps, execs := newDeps(conn)

	ready, err := job.NewDailyPrepUnit(deps).Run(context.Background(), runDate)

	require.NoError(t, err)
	assert.False(t, ready)
	latest, err := execs.FindLatestUnitExecution(context.Background(), job.UnitDailyPrep, runDate)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, latest.ExitStatus)
}

func fittedLoader(t *testing.T) job.ModelLoader {
	t.Helper()
	m, err := forecast.NewSmoothingModel(forecast.EstimatorSES, map[string]float64{"alpha": 1})
	require.NoError(t, err)
	require.NoError(t, m.Fit([]float64{1}, runDate))
	return func() (forecast.Model, error) { return m, nil }
}

func seedDaily(t *testing.T, deps job.Deps, conn database.DBConnection, loc int64, from, to time.Time, temp func(d time.Time) float64) {
	t.Helper()
	var rows []entity.DailyReading
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		rows = append(rows, entity.DailyReading{LocationID: loc, ReadingDate: d, Temperature: temp(d)})
	}
	_, err := deps.Repo.Daily.Write(context.Background(), conn.DB(), rows)
	require.NoError(t, err)
}

func TestForecastUnit_AppendsHorizon(t *testing.T) {
	ctx := context.Background()
	conn := migrated(t)
	deps, _ := newDeps(conn)
	seedDaily(t, deps, conn, cairo, runDate.AddDate(0, 0, -9), runDate, func(d time.Time) float64 { return float64(d.Day()) })
	unit := job.NewForecastUnit(deps, fittedLoader(t))

	exec, err := unit.Run(ctx, runDate)
	require.NoError(t, err)
	assert.Equal(t, int64(30), exec.RowsWritten)

	var rows []entity.ForecastRecord
	require.NoError(t, conn.DB().Order("reading_date").Find(&rows).Error)
	require.Len(t, rows, 30)
	assert.True(t, rows[0].ReadingDate.Equal(runDate.AddDate(0, 0, 1)))
	assert.True(t, rows[29].ReadingDate.Equal(runDate.AddDate(0, 0, 30)))
	assert.Equal(t, 10.0, rows[0].ForecastedTemperature)

	_, err = unit.Run(ctx, runDate)
	require.NoError(t, err)
	assert.Equal(t, int64(60), count[entity.ForecastRecord](t, conn))
}

func TestForecastUnit_ReconcileForecasts(t *testing.T) {
	ctx := context.Background()
	conn := migrated(t)
	deps, _ := newDeps(conn)
	deps.Config.Model.ReconcileForecasts = true
	seedDaily(t, deps, conn, cairo, runDate.AddDate(0, 0, -3), runDate, func(time.Time) float64 { return 20 })
	unit := job.NewForecastUnit(deps, fittedLoader(t))

	for i := 0; i < 2; i++ {
		_, err := unit.Run(ctx, runDate)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(30), count[entity.ForecastRecord](t, conn))
}

func TestForecastUnit_NothingToForecast(t *testing.T) {
	conn := migrated(t)
	deps, _ := newDeps(conn)

	exec, err := job.NewForecastUnit(deps, fittedLoader(t)).Run(context.Background(), runDate)

	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, exec.ExitStatus)
	assert.Zero(t, count[entity.ForecastRecord](t, conn))
}

func TestForecastUnit_ModelErrors(t *testing.T) {
	conn := migrated(t)
	deps, _ := newDeps(conn)
	seedDaily(t, deps, conn, cairo, runDate.AddDate(0, 0, -3), runDate, func(time.Time) float64 { return 20 })

	unfitted, err := forecast.NewSmoothingModel(forecast.EstimatorSES, nil)
	require.NoError(t, err)
	exec, err := job.NewForecastUnit(deps, func() (forecast.Model, error) { return unfitted, nil }).Run(context.Background(), runDate)
	assert.ErrorIs(t, err, exception.ErrModelNotFitted)
	assert.NotContains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, model.UnitStatusFailed, exec.Status)

	_, err = job.NewForecastUnit(deps, job.FileModelLoader(t.TempDir()+"/missing.json")).Run(context.Background(), runDate)
	assert.ErrorIs(t, err, exception.ErrConfiguration)
	assert.Zero(t, count[entity.ForecastRecord](t, conn))
}

func seedForecasts(t *testing.T, deps job.Deps, conn database.DBConnection, loc int64, from, to time.Time, offset func(i int) float64) {
	t.Helper()
	var rows []entity.ForecastRecord
	i := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		rows = append(rows, entity.ForecastRecord{LocationID: loc, ReadingDate: d, ForecastedTemperature: 15 + offset(i)})
		i++
	}
	_, err := deps.Repo.Forecast.Write(context.Background(), conn.DB(), rows)
	require.NoError(t, err)
}

func TestMonitoringUnit_ReplacesRecordPerLocation(t *testing.T) {
	ctx := context.Background()
	conn := migrated(t)
	deps, _ := newDeps(conn)
	db := conn.DB()
	from, to := runDate.AddDate(0, 0, -32), runDate.AddDate(0, 0, -2)

	seedDaily(t, deps, conn, cairo, from, runDate, func(time.Time) float64 { return 15 })
	seedForecasts(t, deps, conn, cairo, from, to, func(i int) float64 {
		if i%2 == 0 {
			return 1
		}
		return -1
	})
	// Outside the window: would dominate the error if it were joined.
	seedForecasts(t, deps, conn, cairo, runDate.AddDate(0, 0, -1), runDate.AddDate(0, 0, -1), func(int) float64 { return 100 })
	// A second location with a single joined day is skipped.
	seedDaily(t, deps, conn, 1, to, to, func(time.Time) float64 { return 15 })
	seedForecasts(t, deps, conn, 1, to, to, func(int) float64 { return 3 })

	_, err := deps.Repo.Monitoring.Write(ctx, db, []entity.MonitoringRecord{
		{LocationID: cairo, MonitoringDate: runDate, RMSE: 999},
		{LocationID: cairo, MonitoringDate: runDate.AddDate(0, 0, -1000), RMSE: 1},
		{LocationID: cairo, MonitoringDate: runDate.AddDate(0, 0, -999), RMSE: 1},
	})
	require.NoError(t, err)

	unit := job.NewMonitoringUnit(deps)
	for i := 0; i < 2; i++ {
		exec, err := unit.Run(ctx, runDate)
		require.NoError(t, err, fmt.Sprintf("run %d", i))
		assert.Equal(t, int64(1), exec.RowsWritten)
	}

	var today []entity.MonitoringRecord
	require.NoError(t, db.Where("monitoring_date = ?", runDate).Find(&today).Error)
	require.Len(t, today, 1)
	assert.Equal(t, cairo, today[0].LocationID)
	assert.InDelta(t, 1.0, today[0].RMSE, 1e-9)
	assert.InDelta(t, 100.0/15, today[0].MeanAbsPercError, 1e-9)
	assert.Len(t, today[0].OrderStatisticMediansX, 31)

	assert.Equal(t, int64(2), count[entity.MonitoringRecord](t, conn))
}

func TestMonitoringUnit_NoPairsIsNoOp(t *testing.T) {
	conn := migrated(t)
	deps, _ := newDeps(conn)

	exec, err := job.NewMonitoringUnit(deps).Run(context.Background(), runDate)

	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, exec.ExitStatus)
}

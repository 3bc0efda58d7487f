package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/repository"
	"github.com/tigerroll/weatherflow/internal/schema"
	testutil "github.com/tigerroll/weatherflow/pkg/batch/test"
)

var today = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "dashboard")
	require.NoError(t, schema.Migrate(ctx, conn))
	repo := repository.NewWeatherRepository()
	db := conn.DB()

	_, err := repo.Daily.Write(ctx, db, []entity.DailyReading{
		{LocationID: 1, ReadingDate: today, Temperature: 20},
		{LocationID: 1, ReadingDate: today.AddDate(0, 0, -120), Temperature: 18},
		{LocationID: 1, ReadingDate: today.AddDate(0, 0, -121), Temperature: 17},
		{LocationID: 2, ReadingDate: today, Temperature: 25},
	})
	require.NoError(t, err)
	_, err = repo.Forecast.Write(ctx, db, []entity.ForecastRecord{
		{LocationID: 1, ReadingDate: today.AddDate(0, 0, 30), ForecastedTemperature: 21},
		{LocationID: 1, ReadingDate: today.AddDate(0, 0, 31), ForecastedTemperature: 22},
	})
	require.NoError(t, err)
	_, err = repo.Monitoring.Write(ctx, db, []entity.MonitoringRecord{
		{LocationID: 1, MonitoringDate: today, RMSE: 1.5},
		{LocationID: 2, MonitoringDate: today, RMSE: 2.5},
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "weatherflow_test_total", Help: "test"}))
	s := NewServer(conn, repo, config.NewConfig().Dashboard, reg)
	s.now = func() time.Time { return today.Add(15 * time.Hour) }
	return s
}

func get(t *testing.T, s *Server, url string) (int, map[string]any, string) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, url, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	return resp.StatusCode, decoded, string(body)
}

func TestHistory_DefaultsToToday(t *testing.T) {
	s := newTestServer(t)

	code, body, _ := get(t, s, "/api/history")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2024-03-01", body["to"])
	assert.Len(t, body["rows"], 3)
}

func TestForecasts_Window(t *testing.T) {
	s := newTestServer(t)

	code, body, _ := get(t, s, "/api/forecasts?date=2024-03-01")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["rows"], 1)
}

func TestMonitoring_ByLocationAndDate(t *testing.T) {
	s := newTestServer(t)

	code, body, _ := get(t, s, "/api/monitoring?location_id=2&date=2024-03-01")
	require.Equal(t, http.StatusOK, code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.5, rows[0].(map[string]any)["rmse"])

	_, body, _ = get(t, s, "/api/monitoring")
	assert.Len(t, body["rows"], 2)
}

func TestInvalidQuery_Returns400(t *testing.T) {
	s := newTestServer(t)

	code, body, _ := get(t, s, "/api/history?date=01-03-2024")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, true, body["error"])

	code, _, _ = get(t, s, "/api/monitoring?location_id=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLocationsHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, body, _ := get(t, s, "/api/locations")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{1.0, 2.0}, body["locations"])

	code, body, _ = get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _, raw := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(raw, "weatherflow_test_total"))
}

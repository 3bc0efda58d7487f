package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

func hourlyBody(n int, nullAt int) []byte {
	times := make([]string, n)
	temps := make([]*float64, n)
	for i := 0; i < n; i++ {
		times[i] = fmt.Sprintf("2024-01-10T%02d:00", i%24)
		if i != nullAt {
			v := 10.0
			temps[i] = &v
		}
	}
	body, _ := json.Marshal(map[string]any{
		"latitude":  30.0,
		"longitude": 31.25,
		"timezone":  "Africa/Cairo",
		"hourly": map[string]any{
			"time":           times,
			"temperature_2m": temps,
		},
	})
	return body
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OpenMeteoClient, FetchRequest) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.WeatherAPIConfig{
		URL:        srv.URL + "/v1/archive",
		Latitude:   30.0,
		Longitude:  31.25,
		Variables:  []string{"temperature_2m"},
		Timezone:   "Africa/Cairo",
		APIToken:   "secret",
		Timeout:    5 * time.Second,
		MinSamples: 24,
	}
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	return NewOpenMeteoClient(cfg, srv.Client()), RequestFor(cfg, day)
}

func TestFetch_CompleteBatch(t *testing.T) {
	client, req := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/archive", r.URL.Path)
		assert.Equal(t, "2024-01-10", q.Get("start_date"))
		assert.Equal(t, "2024-01-10", q.Get("end_date"))
		assert.Equal(t, "temperature_2m", q.Get("hourly"))
		assert.Equal(t, "Africa/Cairo", q.Get("timezone"))
		assert.Equal(t, "secret", q.Get("apikey"))
		_, _ = w.Write(hourlyBody(24, -1))
	})

	batch, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)
	series, ok := batch.Hourly.Series("temperature_2m")
	require.True(t, ok)
	assert.Len(t, series, 24)
	assert.Equal(t, "Africa/Cairo", batch.Timezone)
}

func TestFetch_TooFewSamples(t *testing.T) {
	client, req := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(hourlyBody(23, -1))
	})

	_, err := client.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, exception.ErrIncompleteData)
	assert.True(t, exception.IsTemporary(err))
}

func TestFetch_NullSample(t *testing.T) {
	client, req := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(hourlyBody(24, 5))
	})

	_, err := client.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, exception.ErrIncompleteData)
	assert.Contains(t, err.Error(), "1 null")
}

func TestFetch_ServerError(t *testing.T) {
	client, req := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusInternalServerError)
	})

	_, err := client.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, exception.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "status-code: 500")
}

func TestFetch_MalformedBody(t *testing.T) {
	client, req := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hourly": {"temperature_2m": [1.0]}}`))
	})

	_, err := client.Fetch(context.Background(), req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, exception.ErrIncompleteData)
}

func TestFetch_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	client, req := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 6; i++ {
		_, err := client.Fetch(context.Background(), req)
		require.ErrorIs(t, err, exception.ErrUpstreamUnavailable)
	}
	_, err := client.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, exception.ErrTransientExternal)
	assert.Equal(t, 6, calls)
}

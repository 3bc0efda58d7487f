package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

type recordingPipeline struct {
	dates    []time.Time
	forecast bool
	monitor  bool
	err      error
}

func (p *recordingPipeline) Run(ctx context.Context, runDate time.Time, forecast, monitor bool) error {
	p.dates = append(p.dates, runDate)
	p.forecast, p.monitor = forecast, monitor
	return p.err
}

func TestTrigger_UsesLocalDateMinusLag(t *testing.T) {
	p := &recordingPipeline{}
	cfg := config.NewConfig().Schedule
	s, err := New(cfg, p)
	require.NoError(t, err)
	// 23:30 UTC on Jan 11 is already Jan 12 in Cairo.
	s.now = func() time.Time { return time.Date(2024, 1, 11, 23, 30, 0, 0, time.UTC) }

	require.NoError(t, s.Trigger(context.Background()))
	require.Len(t, p.dates, 1)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), p.dates[0])
	assert.False(t, p.forecast, "Jan 12 is not the forecast day")
	assert.True(t, p.monitor)
}

func TestTrigger_ForecastsOncePerMonth(t *testing.T) {
	p := &recordingPipeline{}
	s, err := New(config.NewConfig().Schedule, p)
	require.NoError(t, err)

	// One trigger a day from Jan 25 to Mar 5, Cairo time.
	var forecastDays []time.Time
	for day := time.Date(2024, 1, 25, 6, 0, 0, 0, s.loc); day.Before(time.Date(2024, 3, 6, 0, 0, 0, 0, s.loc)); day = day.AddDate(0, 0, 1) {
		s.now = func() time.Time { return day }
		require.NoError(t, s.Trigger(context.Background()))
		if p.forecast {
			forecastDays = append(forecastDays, p.dates[len(p.dates)-1])
		}
		assert.True(t, p.monitor)
	}

	assert.Len(t, p.dates, 41)
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
	}, forecastDays)
}

func TestTrigger_ForecastDisabled(t *testing.T) {
	p := &recordingPipeline{}
	cfg := config.NewConfig().Schedule
	cfg.Forecast = false
	s, err := New(cfg, p)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 2, 1, 6, 0, 0, 0, s.loc) }

	require.NoError(t, s.Trigger(context.Background()))
	assert.False(t, p.forecast)
}

func TestTrigger_ReturnsPipelineError(t *testing.T) {
	p := &recordingPipeline{err: errors.New("boom")}
	s, err := New(config.NewConfig().Schedule, p)
	require.NoError(t, err)
	assert.EqualError(t, s.Trigger(context.Background()), "boom")
}

func TestStart_SchedulesDailyAtConfiguredTime(t *testing.T) {
	cfg := config.NewConfig().Schedule
	cfg.At = "06:15"
	s, err := New(cfg, &recordingPipeline{})
	require.NoError(t, err)
	assert.True(t, s.NextRun().IsZero())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.NextRun().In(s.loc)
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 15, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestNew_InvalidTimezone(t *testing.T) {
	cfg := config.NewConfig().Schedule
	cfg.Timezone = "Mars/Olympus"
	_, err := New(cfg, &recordingPipeline{})
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

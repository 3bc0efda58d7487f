package monitoring_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/internal/monitoring"
)

var day = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func pairs(loc int64, actual float64, errs ...float64) []entity.JoinedPair {
	out := make([]entity.JoinedPair, len(errs))
	for i, e := range errs {
		out[i] = entity.JoinedPair{
			LocationID:            loc,
			ReadingDate:           day.AddDate(0, 0, -i-2),
			Temperature:           actual,
			ForecastedTemperature: actual + e,
		}
	}
	return out
}

func TestComputeMetrics(t *testing.T) {
	r, err := monitoring.ComputeMetrics(pairs(1, 10, 1, -1, 2, -2))
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt(2.5), r.RMSE, 1e-9)
	assert.InDelta(t, 0, r.MeanError, 1e-9)
	assert.InDelta(t, math.Sqrt(10.0/3), r.ErrorStd, 1e-9)
	assert.InDelta(t, 1.5, r.MeanAbsError, 1e-9)
	assert.InDelta(t, math.Sqrt(1.0/3), r.AbsErrorStd, 1e-9)
	assert.InDelta(t, 15, r.MeanAbsPercError, 1e-9)
	assert.Equal(t, 4, r.Pairs)

	n := r.Normality
	assert.Equal(t, []float64{-2, -1, 1, 2}, n.OrderStatisticMediansY)
	require.Len(t, n.OrderStatisticMediansX, 4)
	assert.InDelta(t, 0, n.OrderStatisticMediansX[0]+n.OrderStatisticMediansX[3], 1e-9)
	assert.Less(t, n.OrderStatisticMediansX[0], n.OrderStatisticMediansX[1])
	assert.Greater(t, n.Slope, 0.0)
	assert.InDelta(t, 0, n.Intercept, 1e-9)
	assert.Greater(t, n.R, 0.9)
}

func TestComputeMetrics_NotEnoughData(t *testing.T) {
	_, err := monitoring.ComputeMetrics(pairs(1, 10, 1))
	assert.ErrorContains(t, err, "not enough data")
}

func TestComputeMetrics_ConstantErrorsStayFinite(t *testing.T) {
	r, err := monitoring.ComputeMetrics(pairs(1, 0, 1, 1, 1))
	require.NoError(t, err)

	rec := r.Record(1, day)
	assert.Equal(t, 0.0, rec.R)
	assert.Equal(t, 0.0, rec.MeanAbsPercError)
	assert.Equal(t, 1.0, rec.RMSE)
	assert.True(t, rec.MonitoringDate.Equal(day))
	assert.Len(t, rec.OrderStatisticMediansX, 3)
}

func TestGroupByLocation(t *testing.T) {
	all := append(pairs(7, 10, 1, 2), pairs(3, 10, 1, 2, 3)...)
	ids, groups := monitoring.GroupByLocation(all)
	assert.Equal(t, []int64{3, 7}, ids)
	assert.Len(t, groups[3], 3)
	assert.Len(t, groups[7], 2)
}

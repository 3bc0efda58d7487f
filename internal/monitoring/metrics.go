// Package monitoring computes forecast quality metrics from forecasts joined with observed temperatures.
package monitoring

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tigerroll/weatherflow/internal/domain/entity"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

// MinPairs is the smallest number of joined pairs a report is computed from.
const MinPairs = 2

// ErrorNormality is the normal probability plot of the errors and its least-squares fit.
type ErrorNormality struct {
	OrderStatisticMediansX []float64 `json:"order_statistic_medians_x"`
	OrderStatisticMediansY []float64 `json:"order_statistic_medians_y"`
	Slope                  float64   `json:"slope"`
	Intercept              float64   `json:"intercept"`
	R                      float64   `json:"r"`
}

// Report holds the regression quality metrics of one location. Errors are prediction minus actual.
type Report struct {
	RMSE             float64        `json:"rmse"`
	MeanError        float64        `json:"mean_error"`
	ErrorStd         float64        `json:"error_std"`
	MeanAbsError     float64        `json:"mean_abs_error"`
	AbsErrorStd      float64        `json:"abs_error_std"`
	MeanAbsPercError float64        `json:"mean_abs_perc_error"`
	AbsPercErrorStd  float64        `json:"abs_perc_error_std"`
	Normality        ErrorNormality `json:"error_normality"`
	Pairs            int            `json:"pairs"`
}

// ComputeMetrics builds the report of pairs. Standard deviations are sample deviations. Pairs whose actual
// temperature is zero are left out of the percentage metrics.
func ComputeMetrics(pairs []entity.JoinedPair) (Report, error) {
	if len(pairs) < MinPairs {
		return Report{}, exception.NewBatchErrorf("monitoring", "not enough data: %d joined pairs, need at least %d", len(pairs), MinPairs)
	}

	errs := make([]float64, len(pairs))
	absErrs := make([]float64, len(pairs))
	percErrs := make([]float64, 0, len(pairs))
	sq := 0.0
	for i, p := range pairs {
		e := p.ForecastedTemperature - p.Temperature
		errs[i] = e
		absErrs[i] = math.Abs(e)
		sq += e * e
		if p.Temperature != 0 {
			percErrs = append(percErrs, 100*math.Abs(e)/math.Abs(p.Temperature))
		}
	}

	r := Report{Pairs: len(pairs)}
	r.RMSE = math.Sqrt(sq / float64(len(errs)))
	r.MeanError, r.ErrorStd = stat.MeanStdDev(errs, nil)
	r.MeanAbsError, r.AbsErrorStd = stat.MeanStdDev(absErrs, nil)
	switch len(percErrs) {
	case 0:
	case 1:
		r.MeanAbsPercError = percErrs[0]
	default:
		r.MeanAbsPercError, r.AbsPercErrorStd = stat.MeanStdDev(percErrs, nil)
	}
	r.Normality = probabilityPlot(errs)
	return r, nil
}

// probabilityPlot pairs the sorted errors with Filliben's estimate of the normal order statistic medians.
func probabilityPlot(errs []float64) ErrorNormality {
	n := len(errs)
	y := append([]float64(nil), errs...)
	sort.Float64s(y)

	x := make([]float64, n)
	last := math.Pow(0.5, 1/float64(n))
	for i := range x {
		var m float64
		switch i {
		case 0:
			m = 1 - last
		case n - 1:
			m = last
		default:
			m = (float64(i+1) - 0.3175) / (float64(n) + 0.365)
		}
		x[i] = distuv.UnitNormal.Quantile(m)
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	return ErrorNormality{
		OrderStatisticMediansX: x,
		OrderStatisticMediansY: y,
		Slope:                  finite(slope),
		Intercept:              finite(intercept),
		R:                      finite(stat.Correlation(x, y, nil)),
	}
}

// finite maps NaN and infinities, produced by zero-variance errors, to 0 so the record stays storable.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Record converts the report into the stored row of locationID on monitoringDate.
func (r Report) Record(locationID int64, monitoringDate time.Time) entity.MonitoringRecord {
	return entity.MonitoringRecord{
		LocationID:             locationID,
		MonitoringDate:         entity.Day(monitoringDate),
		RMSE:                   r.RMSE,
		MeanError:              r.MeanError,
		ErrorStd:               finite(r.ErrorStd),
		MeanAbsError:           r.MeanAbsError,
		AbsErrorStd:            finite(r.AbsErrorStd),
		MeanAbsPercError:       r.MeanAbsPercError,
		AbsPercErrorStd:        finite(r.AbsPercErrorStd),
		OrderStatisticMediansX: r.Normality.OrderStatisticMediansX,
		OrderStatisticMediansY: r.Normality.OrderStatisticMediansY,
		Slope:                  r.Normality.Slope,
		Intercept:              r.Normality.Intercept,
		R:                      r.Normality.R,
	}
}

// GroupByLocation splits joined pairs per location, locations ascending.
func GroupByLocation(pairs []entity.JoinedPair) ([]int64, map[int64][]entity.JoinedPair) {
	groups := make(map[int64][]entity.JoinedPair)
	var ids []int64
	for _, p := range pairs {
		if _, ok := groups[p.LocationID]; !ok {
			ids = append(ids, p.LocationID)
		}
		groups[p.LocationID] = append(groups[p.LocationID], p)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, groups
}

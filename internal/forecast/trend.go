// Package forecast contains the two forecasting models and the ensemble
// blender that combines them.
package forecast

import (
	"math"
	"sort"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/series"
)

const (
	// zScore95 scales residual deviation to a 95% interval.
	zScore95 = 1.96

	// logSpanThreshold switches the trend fit to log space when the series
	// spans more than this ratio between its largest and smallest positive
	// values (orders of magnitude).
	logSpanThreshold = 100.0

	// noiseFloorFrac is the minimum residual deviation relative to the mean
	// absolute level. A flat history still gets non-zero bounds.
	noiseFloorFrac = 0.05
)

// TrendModel fits a robust linear trend to an observation series and
// extrapolates it. It decomposes the series into trend + residual; the
// empirical residual deviation drives the confidence bounds, widening with
// the square root of forecast distance.
//
// Fitting always succeeds on >=2 points. A flat or single-valued history
// degrades to a flat projection with floor-width bounds, never an error.
type TrendModel struct {
	slope     float64
	intercept float64
	residual  float64 // residual standard deviation (fit space)
	logSpace  bool
	n         int
	level     float64 // mean absolute level of the raw series
	score     float64 // backtest accuracy in [0, 100]
}

// FitTrend fits the trend model on the full series.
func FitTrend(s *series.Series) *TrendModel {
	vals := s.Values()
	m := fitTrendValues(vals)
	m.score = trendBacktest(vals)
	return m
}

func fitTrendValues(vals []float64) *TrendModel {
	m := &TrendModel{n: len(vals)}

	for _, v := range vals {
		m.level += math.Abs(v)
	}
	m.level /= float64(len(vals))

	fitVals := vals
	if spansOrdersOfMagnitude(vals) {
		m.logSpace = true
		fitVals = make([]float64, len(vals))
		for i, v := range vals {
			fitVals[i] = math.Log(v)
		}
	}

	m.slope, m.intercept = theilSen(fitVals)

	// Residual deviation with a non-zero floor.
	var sq float64
	for i, v := range fitVals {
		r := v - (m.intercept + m.slope*float64(i))
		sq += r * r
	}
	m.residual = math.Sqrt(sq / float64(len(fitVals)))

	floor := noiseFloorFrac * m.level
	if m.logSpace {
		floor = noiseFloorFrac
	}
	if floor <= 0 {
		floor = 1.0
	}
	if m.residual < floor {
		m.residual = floor
	}
	return m
}

// Slope reports the fitted annual trend in amount units per year. In log
// space this is the first-order change at the last fitted level.
func (m *TrendModel) Slope() float64 {
	if !m.logSpace {
		return m.slope
	}
	last := math.Exp(m.intercept + m.slope*float64(m.n-1))
	return last * m.slope
}

// Score returns the holdout backtest accuracy in [0, 100].
func (m *TrendModel) Score() float64 { return m.score }

// Predict extrapolates the fitted trend horizon years past the series end.
// Bound width grows with sqrt(distance) and never collapses to zero.
func (m *TrendModel) Predict(lastYear, horizon int) []api.PredictionPoint {
	points := make([]api.PredictionPoint, 0, horizon)
	for h := 1; h <= horizon; h++ {
		idx := float64(m.n - 1 + h)
		fit := m.intercept + m.slope*idx
		spread := zScore95 * m.residual * math.Sqrt(float64(h))

		var predicted, lower, upper float64
		if m.logSpace {
			predicted = math.Exp(fit)
			lower = math.Exp(fit - spread)
			upper = math.Exp(fit + spread)
		} else {
			// Clamp the center first and keep the interval at its full
			// width; a declining trend bottoming out at zero must not
			// collapse or shrink the bounds.
			predicted = math.Max(0, fit)
			lower = math.Max(0, predicted-spread)
			upper = lower + 2*spread
		}

		points = append(points, api.PredictionPoint{
			Year:      lastYear + h,
			Predicted: predicted,
			Lower:     lower,
			Upper:     upper,
		})
	}
	return points
}

// trendBacktest refits on all but the last 1-2 points and scores the holdout
// by MAPE, converted to a 0-100 accuracy.
func trendBacktest(vals []float64) float64 {
	holdout := 1
	if len(vals) >= 6 {
		holdout = 2
	}
	train := vals[:len(vals)-holdout]
	if len(train) < 2 {
		// Too short to hold anything out; a neutral mid score keeps the
		// ensemble weighting meaningful.
		return 50
	}

	m := fitTrendValues(train)
	preds := m.Predict(0, holdout)

	var mape float64
	var counted int
	for h := 0; h < holdout; h++ {
		actual := vals[len(train)+h]
		if actual == 0 {
			continue
		}
		mape += math.Abs(preds[h].Predicted-actual) / math.Abs(actual) * 100
		counted++
	}
	if counted == 0 {
		return 50
	}
	mape /= float64(counted)
	return 100 - clamp(mape, 0, 100)
}

// theilSen computes the median-of-pairwise-slopes estimator, robust to
// single-year spikes in event-driven aid flows.
func theilSen(vals []float64) (slope, intercept float64) {
	n := len(vals)
	if n < 2 {
		return 0, vals[0]
	}

	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			slopes = append(slopes, (vals[j]-vals[i])/float64(j-i))
		}
	}
	slope = median(slopes)

	offsets := make([]float64, n)
	for i, v := range vals {
		offsets[i] = v - slope*float64(i)
	}
	intercept = median(offsets)
	return slope, intercept
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func spansOrdersOfMagnitude(vals []float64) bool {
	minPos := math.Inf(1)
	maxPos := 0.0
	for _, v := range vals {
		if v <= 0 {
			return false
		}
		minPos = math.Min(minPos, v)
		maxPos = math.Max(maxPos, v)
	}
	return maxPos/minPos > logSpanThreshold
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

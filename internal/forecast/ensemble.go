package forecast

import (
	"fmt"
	"math"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/series"
)

const (
	// disagreementThreshold is the fraction of the blended value above which
	// inter-model disagreement starts to penalize confidence.
	disagreementThreshold = 0.20

	// maxConfidencePenalty caps how far disagreement can pull confidence
	// below the hybrid score.
	maxConfidencePenalty = 25.0

	// trendOnlyCap bounds the confidence reported without feature-model
	// corroboration.
	trendOnlyCap = 70.0
)

// Blend combines the two component forecasts into the final prediction
// sequence and accuracy report. featPts may be nil when the feature model
// was skipped or timed out; the trend forecast then carries full weight and
// confidence is capped.
//
// Per-year values are accuracy-weighted averages; bounds are the union of
// the component bounds, so the ensemble never looks more certain than its
// most uncertain member.
func Blend(trendPts []api.PredictionPoint, trendScore float64, featPts []api.PredictionPoint, featScore float64, degraded bool) ([]api.PredictionPoint, api.AccuracyReport) {
	if len(featPts) == 0 {
		report := api.AccuracyReport{
			TrendScore:  round1(trendScore),
			HybridScore: round1(trendScore),
			Confidence:  round1(math.Min(trendScore, trendOnlyCap)),
			Method:      "Trend Decomposition (fallback)",
			Degraded:    degraded,
		}
		return trendPts, report
	}

	wTrend, wFeat := weights(trendScore, featScore)

	blended := make([]api.PredictionPoint, len(trendPts))
	var disagreement float64
	for i := range trendPts {
		t, f := trendPts[i], featPts[i]
		predicted := wTrend*t.Predicted + wFeat*f.Predicted
		blended[i] = api.PredictionPoint{
			Year:      t.Year,
			Predicted: predicted,
			Lower:     math.Min(t.Lower, f.Lower),
			Upper:     math.Max(t.Upper, f.Upper),
		}
		denom := math.Max(math.Abs(predicted), 1e-9)
		disagreement += math.Abs(t.Predicted-f.Predicted) / denom
	}
	disagreement /= float64(len(trendPts))

	hybrid := wTrend*trendScore + wFeat*featScore
	confidence := hybrid
	if disagreement > disagreementThreshold {
		penalty := math.Min(maxConfidencePenalty, (disagreement-disagreementThreshold)*100)
		confidence = hybrid - penalty
	}

	report := api.AccuracyReport{
		TrendScore:   round1(trendScore),
		FeatureScore: round1(featScore),
		HybridScore:  round1(hybrid),
		Confidence:   round1(clamp(confidence, 0, 100)),
		Method:       "Hybrid (Trend Decomposition + Gradient Boosting)",
	}
	return blended, report
}

// weights converts component backtest scores into blend weights normalized
// to sum to 1.
func weights(trendScore, featScore float64) (float64, float64) {
	total := trendScore + featScore
	if total <= 0 {
		return 0.5, 0.5
	}
	return trendScore / total, featScore / total
}

// Insights derives the deterministic human-readable summary from the fitted
// trend. No separate model: every line is a direct function of the slope,
// the series, and the report.
func Insights(s *series.Series, trend *TrendModel, report api.AccuracyReport) []string {
	vals := s.Values()
	slope := trend.Slope()
	last := vals[len(vals)-1]

	var out []string
	switch {
	case slope > 100:
		out = append(out, fmt.Sprintf("Aid flows to %s show strong growth trend (+%s/year)", s.EntityKey, formatAmount(slope)))
		out = append(out, "Continued investment likely reflects development priorities")
	case slope < -100:
		out = append(out, fmt.Sprintf("Aid flows to %s show declining trend (%s/year)", s.EntityKey, formatAmount(slope)))
		out = append(out, "May indicate graduation from aid dependency or shifting priorities")
	default:
		out = append(out, fmt.Sprintf("Aid flows to %s remain relatively stable", s.EntityKey))
	}

	conf := int(report.Confidence)
	out = append(out, fmt.Sprintf("Model confidence: %d%% (±%d%% uncertainty)", conf, 100-conf))
	out = append(out, fmt.Sprintf("Base amount: %s (last recorded year: %d)", formatAmount(last), s.LastYear()))

	if year, ok := spikeYear(s); ok {
		out = append(out, fmt.Sprintf("Single-year spike detected in %d; bounds widened accordingly", year))
	}
	if s.Sector != "" && s.Sector != "all" {
		out = append(out, fmt.Sprintf("%s sector represents significant aid allocation", s.Sector))
	}
	if report.Degraded {
		out = append(out, "Feature model unavailable for this run; projection is trend-only")
	}
	return out
}

// spikeYear reports an observed year whose detrended value sits beyond three
// scale units, the event-driven outliers common in aid flows. Scale is the
// median absolute deviation of the residuals, which the spike itself cannot
// inflate the way a standard deviation would.
func spikeYear(s *series.Series) (int, bool) {
	vals := s.Values()
	if len(vals) < 4 {
		return 0, false
	}
	m := fitTrendValues(vals)

	resid := make([]float64, len(vals))
	abs := make([]float64, len(vals))
	for i, v := range vals {
		if m.logSpace {
			v = math.Log(math.Max(v, 1e-9))
		}
		resid[i] = v - (m.intercept + m.slope*float64(i))
		abs[i] = math.Abs(resid[i])
	}

	scale := 1.4826 * median(abs)
	floor := noiseFloorFrac * m.level
	if m.logSpace {
		floor = noiseFloorFrac
	}
	if scale < floor {
		scale = floor
	}

	for i, p := range s.Points {
		if p.Imputed {
			continue
		}
		if math.Abs(resid[i]) > 3*scale {
			return p.Year, true
		}
	}
	return 0, false
}

// formatAmount renders a USD amount recorded in millions, promoting to
// billions past 1000.
func formatAmount(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
	}
	abs := math.Abs(v)
	if abs >= 1000 {
		return fmt.Sprintf("%s$%.1fB USD", sign, abs/1000)
	}
	return fmt.Sprintf("%s$%.1fM USD", sign, abs)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

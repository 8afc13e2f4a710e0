package forecast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/series"
)

func TestBlend_TrendOnlyFallback(t *testing.T) {
	trendPts := []api.PredictionPoint{{Year: 2024, Predicted: 100, Lower: 80, Upper: 120}}

	pts, report := Blend(trendPts, 90, nil, 0, true)
	require.Equal(t, trendPts, pts)
	assert.Equal(t, 90.0, report.TrendScore)
	assert.Equal(t, 90.0, report.HybridScore)
	assert.Equal(t, trendOnlyCap, report.Confidence)
	assert.True(t, report.Degraded)
	assert.Contains(t, report.Method, "fallback")
}

func TestBlend_WeightedAverageAndUnionBounds(t *testing.T) {
	trendPts := []api.PredictionPoint{{Year: 2024, Predicted: 100, Lower: 80, Upper: 120}}
	featPts := []api.PredictionPoint{{Year: 2024, Predicted: 110, Lower: 95, Upper: 180}}

	pts, report := Blend(trendPts, 60, featPts, 90, false)
	require.Len(t, pts, 1)

	// Weights 0.4/0.6 from the 60/90 scores.
	assert.InDelta(t, 106.0, pts[0].Predicted, 1e-9)
	assert.InDelta(t, 80.0, pts[0].Lower, 1e-9)
	assert.InDelta(t, 180.0, pts[0].Upper, 1e-9)
	assert.InDelta(t, 78.0, report.HybridScore, 1e-9)

	// Models roughly agree, so confidence equals the hybrid score.
	assert.InDelta(t, 78.0, report.Confidence, 1e-9)
	assert.False(t, report.Degraded)
}

func TestBlend_PredictionInsideComponentHull(t *testing.T) {
	trendPts := []api.PredictionPoint{
		{Year: 2024, Predicted: 100, Lower: 90, Upper: 110},
		{Year: 2025, Predicted: 105, Lower: 92, Upper: 118},
	}
	featPts := []api.PredictionPoint{
		{Year: 2024, Predicted: 130, Lower: 110, Upper: 150},
		{Year: 2025, Predicted: 150, Lower: 120, Upper: 180},
	}

	pts, _ := Blend(trendPts, 75, featPts, 75, false)
	for i := range pts {
		lo := min(trendPts[i].Predicted, featPts[i].Predicted)
		hi := max(trendPts[i].Predicted, featPts[i].Predicted)
		assert.GreaterOrEqual(t, pts[i].Predicted, lo)
		assert.LessOrEqual(t, pts[i].Predicted, hi)
	}
}

func TestBlend_DisagreementPenalizesConfidence(t *testing.T) {
	trendPts := []api.PredictionPoint{{Year: 2024, Predicted: 100, Lower: 80, Upper: 120}}
	featPts := []api.PredictionPoint{{Year: 2024, Predicted: 140, Lower: 100, Upper: 180}}

	// Disagreement 40/120 = 1/3 exceeds the threshold by ~13.3 points.
	_, report := Blend(trendPts, 80, featPts, 80, false)
	assert.InDelta(t, 80.0, report.HybridScore, 1e-9)
	assert.InDelta(t, 66.7, report.Confidence, 0.05)
}

func TestBlend_PenaltyIsCapped(t *testing.T) {
	trendPts := []api.PredictionPoint{{Year: 2024, Predicted: 10, Lower: 5, Upper: 15}}
	featPts := []api.PredictionPoint{{Year: 2024, Predicted: 200, Lower: 150, Upper: 250}}

	_, report := Blend(trendPts, 80, featPts, 80, false)
	assert.InDelta(t, 80.0-maxConfidencePenalty, report.Confidence, 1e-9)
}

func TestInsights_GrowthDeclineStable(t *testing.T) {
	report := api.AccuracyReport{Confidence: 82}

	grow, err := series.Build("India", "all", map[int]float64{
		2020: 1000, 2021: 1500, 2022: 2000, 2023: 2500,
	})
	require.NoError(t, err)
	lines := Insights(grow, FitTrend(grow), report)
	assert.Contains(t, strings.Join(lines, "\n"), "strong growth trend")

	decline, err := series.Build("Zambia", "all", map[int]float64{
		2020: 2500, 2021: 2000, 2022: 1500, 2023: 1000,
	})
	require.NoError(t, err)
	lines = Insights(decline, FitTrend(decline), report)
	assert.Contains(t, strings.Join(lines, "\n"), "declining trend")

	flat, err := series.Build("Kenya", "all", map[int]float64{
		2021: 50, 2022: 50, 2023: 50,
	})
	require.NoError(t, err)
	lines = Insights(flat, FitTrend(flat), report)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "relatively stable")
	assert.Contains(t, joined, "Model confidence: 82%")
	assert.Contains(t, joined, "last recorded year: 2023")
}

func TestInsights_SectorAndDegradedNotes(t *testing.T) {
	s, err := series.Build("Nepal", "Emergency Response", map[int]float64{
		2021: 900, 2022: 950, 2023: 1000,
	})
	require.NoError(t, err)

	lines := Insights(s, FitTrend(s), api.AccuracyReport{Confidence: 60, Degraded: true})
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Emergency Response sector")
	assert.Contains(t, joined, "trend-only")
}

func TestSpikeYear_DetectsSingleYearEvent(t *testing.T) {
	s, err := series.Build("Nepal", "all", map[int]float64{
		2015: 900, 2016: 940, 2017: 1700, 2018: 980,
		2019: 1010, 2020: 1050, 2021: 1080,
	})
	require.NoError(t, err)

	year, ok := spikeYear(s)
	require.True(t, ok)
	assert.Equal(t, 2017, year)
}

func TestSpikeYear_QuietSeries(t *testing.T) {
	s, err := series.Build("Kenya", "all", map[int]float64{
		2020: 100, 2021: 120, 2022: 150, 2023: 200,
	})
	require.NoError(t, err)

	_, ok := spikeYear(s)
	assert.False(t, ok)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$250.0M USD", formatAmount(250))
	assert.Equal(t, "$1.5B USD", formatAmount(1500))
	assert.Equal(t, "-$120.0M USD", formatAmount(-120))
}

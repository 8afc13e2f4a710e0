package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidlens/aidlens/internal/api"
)

func TestBuild_GapYearsInterpolated(t *testing.T) {
	s, err := Build("Kenya", "all", map[int]float64{
		2018: 100,
		2021: 160, // 2019 and 2020 missing
		2022: 180,
	})
	require.NoError(t, err)

	require.Len(t, s.Points, 5)
	assert.Equal(t, 2018, s.Points[0].Year)
	assert.Equal(t, 2022, s.LastYear())

	assert.False(t, s.Points[0].Imputed)
	assert.True(t, s.Points[1].Imputed)
	assert.True(t, s.Points[2].Imputed)
	assert.InDelta(t, 120.0, s.Points[1].Amount, 1e-9)
	assert.InDelta(t, 140.0, s.Points[2].Amount, 1e-9)
	assert.Equal(t, 3, s.ObservedCount())
}

func TestBuild_InsufficientHistory(t *testing.T) {
	_, err := Build("Tuvalu", "all", map[int]float64{2020: 50})
	require.ErrorIs(t, err, api.ErrInsufficientHistory)
}

func TestBuild_IgnoresYearsOutsideWindow(t *testing.T) {
	_, err := Build("Chad", "all", map[int]float64{
		2005: 10,
		2010: 20,
		2020: 30, // only one in-window year
	})
	require.ErrorIs(t, err, api.ErrInsufficientHistory)

	s, err := Build("Chad", "all", map[int]float64{
		2010: 20,
		2020: 30,
		2022: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, 2020, s.Points[0].Year)
}

func TestBuildFeatures_BaseColumns(t *testing.T) {
	s, err := Build("India", "all", map[int]float64{
		2019: 100, 2020: 110, 2021: 121, 2022: 133, 2023: 146,
	})
	require.NoError(t, err)

	fs := BuildFeatures(s, nil)
	require.Equal(t, BaseFeatureNames(), fs.Names)
	require.Len(t, fs.Rows, 5)
	require.Equal(t, s.Values(), fs.Target)

	// Row 2 (year 2021): lag is the 2020 amount, rolling mean covers
	// 2019-2021.
	row := fs.Row(2)
	assert.InDelta(t, 2.0, row[0], 1e-9)
	assert.InDelta(t, 110.0, row[1], 1e-9)
	assert.InDelta(t, (100.0+110+121)/3, row[2], 1e-9)
	assert.InDelta(t, 0.1, row[4], 1e-9) // 110 → 121 growth

	// First row backfills the lag with its own amount.
	assert.InDelta(t, 100.0, fs.Row(0)[1], 1e-9)
}

func TestBuildFeatures_IndicatorImputation(t *testing.T) {
	s, err := Build("Ghana", "all", map[int]float64{
		2019: 10, 2020: 12, 2021: 14, 2022: 16,
	})
	require.NoError(t, err)

	fs := BuildFeatures(s, map[int]map[string]float64{
		2020: {"gdp_growth": 5.0},
		2021: {"gdp_growth": 6.0},
	})

	require.Equal(t, append(append([]string{}, BaseFeatureNames()...), "gdp_growth"), fs.Names)

	col := len(fs.Names) - 1
	// 2019 has no prior value: global mean. 2022 carries 2021 forward.
	assert.InDelta(t, 5.5, fs.Row(0)[col], 1e-9)
	assert.InDelta(t, 5.0, fs.Row(1)[col], 1e-9)
	assert.InDelta(t, 6.0, fs.Row(2)[col], 1e-9)
	assert.InDelta(t, 6.0, fs.Row(3)[col], 1e-9)
	assert.Equal(t, ImputeGlobalMean, fs.Provenance["gdp_growth"])
}

func TestBuildFeatures_IndicatorCarryForwardOnly(t *testing.T) {
	s, err := Build("Ghana", "all", map[int]float64{
		2020: 12, 2021: 14, 2022: 16,
	})
	require.NoError(t, err)

	fs := BuildFeatures(s, map[int]map[string]float64{
		2020: {"political_stability": 0.4},
		2021: {"political_stability": 0.5},
	})
	assert.Equal(t, ImputeCarryForward, fs.Provenance["political_stability"])
}

func TestMeanRow(t *testing.T) {
	fs := &FeatureSet{
		Names: []string{"a", "b"},
		Rows:  [][]float64{{1, 10}, {3, 20}},
	}
	mean := fs.MeanRow()
	assert.InDelta(t, 2.0, mean[0], 1e-9)
	assert.InDelta(t, 15.0, mean[1], 1e-9)
}

func TestSyntheticRow_UsesRolloutHistory(t *testing.T) {
	history := []float64{100, 120, 150, 200}
	row := SyntheticRow(history, 4, CycleLength(4), nil)

	require.Len(t, row, len(BaseFeatureNames()))
	assert.InDelta(t, 4.0, row[0], 1e-9)
	// Lag is the most recent value, mean and growth come off the rollout tail.
	assert.InDelta(t, 200.0, row[1], 1e-9)
	assert.InDelta(t, (120.0+150+200)/3, row[2], 1e-9)
	assert.InDelta(t, (200.0-150)/150, row[4], 1e-9)
}

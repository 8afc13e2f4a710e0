// Package explain computes additive feature attributions for feature-model
// predictions.
package explain

import (
	"math"
	"sort"
	"strings"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/series"
)

// numCoalitions is the number of sampled feature coalitions per feature.
// Sampling is deterministic: identical model and inputs always yield the
// same attribution.
const numCoalitions = 100

// Model is the prediction surface being explained.
type Model interface {
	Predict(row []float64) float64
	FeatureNames() []string
	BaselineRow() []float64
}

// Attribute estimates each feature's marginal contribution to the prediction
// for row, relative to the model's baseline (population-mean) feature vector.
// Kernel-SHAP style: average the prediction shift across sampled coalitions
// with and without the feature's value, then rescale so the impacts plus the
// baseline prediction reconstruct the model output exactly.
func Attribute(m Model, row []float64, entityKey, sector string) api.ExplanationResult {
	baseline := m.BaselineRow()
	names := m.FeatureNames()

	baseValue := m.Predict(baseline)
	prediction := m.Predict(row)

	impacts := marginalContributions(m, row, baseline)
	normalizeAdditive(impacts, prediction-baseValue)

	explanations := make([]api.Explanation, len(impacts))
	for i, impact := range impacts {
		cat := categoryOf(names[i])
		explanations[i] = api.Explanation{
			Feature:     displayName(names[i]),
			Impact:      impact,
			Description: describe(names[i], cat, impact),
			Category:    cat,
		}
	}
	sort.SliceStable(explanations, func(a, b int) bool {
		return math.Abs(explanations[a].Impact) > math.Abs(explanations[b].Impact)
	})

	return api.ExplanationResult{
		Explanations:    explanations,
		BaseValue:       baseValue,
		ModelPrediction: prediction,
		EntityKey:       entityKey,
		SectorFilter:    sector,
	}
}

func marginalContributions(m Model, row, baseline []float64) []float64 {
	n := len(row)
	impacts := make([]float64, n)
	coalition := make([]float64, n)

	for i := 0; i < n; i++ {
		var sum float64
		var count int
		for s := 0; s < numCoalitions; s++ {
			withTarget := s%2 == 0
			for j := 0; j < n; j++ {
				switch {
				case j == i:
					if withTarget {
						coalition[j] = row[j]
					} else {
						coalition[j] = baseline[j]
					}
				case (s+j)%3 == 0:
					coalition[j] = row[j]
				default:
					coalition[j] = baseline[j]
				}
			}
			shift := m.Predict(coalition) - m.Predict(baseline)
			if withTarget {
				sum += shift
			} else {
				sum -= shift
			}
			count++
		}
		impacts[i] = sum / float64(count)
	}
	return impacts
}

// normalizeAdditive rescales impacts so they sum to target, the additivity
// law the response contract promises. When the raw sum is too small to
// rescale, the remainder is spread evenly.
func normalizeAdditive(impacts []float64, target float64) {
	sum := 0.0
	for _, v := range impacts {
		sum += v
	}
	if math.Abs(sum) > 1e-9 {
		scale := target / sum
		for i := range impacts {
			impacts[i] *= scale
		}
		return
	}
	share := (target - sum) / float64(len(impacts))
	for i := range impacts {
		impacts[i] += share
	}
}

// Feature categories used by the presentation layer to group factors.
const (
	CategoryTemporal   = "temporal"
	CategoryStability  = "stability"
	CategoryStructural = "structural"
	CategoryExternal   = "external"
	CategoryGovernance = "governance"
)

func categoryOf(name string) string {
	switch name {
	case series.FeatureYearIndex, series.FeatureLag1, series.FeatureRollingMean:
		return CategoryTemporal
	case series.FeatureVolatility, series.FeatureGrowthRate:
		return CategoryStability
	case series.FeatureCycleSin, series.FeatureCycleCos:
		return CategoryExternal
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "stability") || strings.Contains(lower, "governance"):
		return CategoryGovernance
	case strings.Contains(lower, "gdp") || strings.Contains(lower, "economic") || strings.Contains(lower, "trade"):
		return CategoryExternal
	default:
		return CategoryStructural
	}
}

func displayName(name string) string {
	switch name {
	case series.FeatureYearIndex:
		return "Time Horizon"
	case series.FeatureLag1:
		return "Previous Year Aid"
	case series.FeatureRollingMean:
		return "Historical Trend"
	case series.FeatureVolatility:
		return "Aid Volatility"
	case series.FeatureGrowthRate:
		return "Recent Growth"
	case series.FeatureCycleSin, series.FeatureCycleCos:
		return "Economic Cycle"
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		if p == "gdp" {
			parts[i] = "GDP"
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// describe renders the human-readable template for a feature category. The
// wording depends only on the category and the sign of the impact, keeping
// explanations deterministic.
func describe(name, category string, impact float64) string {
	positive := impact >= 0
	switch category {
	case CategoryTemporal:
		if positive {
			return "Positive long-term aid flow pattern indicates sustained donor commitment"
		}
		return "Weakening aid flow pattern lowers the projected allocation"
	case CategoryStability:
		if name == series.FeatureVolatility {
			if positive {
				return "Variable aid flows widen the plausible range for this prediction"
			}
			return "Low variability in aid flows affects prediction confidence"
		}
		if positive {
			return "Recent growth momentum raises the projected aid level"
		}
		return "Recent contraction weighs on the projected aid level"
	case CategoryExternal:
		if positive {
			return "Global economic conditions favor aid allocation to this region"
		}
		return "Global economic conditions limit aid allocation to this region"
	case CategoryGovernance:
		return "Stable political environment affects aid predictability and effectiveness"
	default:
		if positive {
			return "High development needs drive continued aid requirements"
		}
		return "Lower aid dependency suggests development progress"
	}
}

// Package series assembles per-entity annual observation series and the
// engineered feature vectors consumed by the forecasters.
package series

import (
	"fmt"
	"math"
	"sort"

	"github.com/aidlens/aidlens/internal/api"
)

// Base features engineered for every entity-year, in model input order.
// External indicator features are appended after these, sorted by name so the
// layout is deterministic for a given entity.
const (
	FeatureYearIndex   = "year_index"
	FeatureLag1        = "lag_1"
	FeatureRollingMean = "rolling_mean_3"
	FeatureVolatility  = "volatility"
	FeatureGrowthRate  = "growth_rate"
	FeatureCycleSin    = "cycle_sin"
	FeatureCycleCos    = "cycle_cos"
)

var baseFeatures = []string{
	FeatureYearIndex,
	FeatureLag1,
	FeatureRollingMean,
	FeatureVolatility,
	FeatureGrowthRate,
	FeatureCycleSin,
	FeatureCycleCos,
}

// BaseFeatureNames returns the engineered feature columns that precede the
// external indicators in every row.
func BaseFeatureNames() []string {
	return baseFeatures
}

// Imputation provenance values recorded per feature.
const (
	ImputeNone         = "observed"
	ImputeInterpolated = "linear-interpolation"
	ImputeCarryForward = "carry-forward"
	ImputeGlobalMean   = "global-mean"
)

// Series is a gap-free annual amount series for one entity, clipped to the
// supported window. Interior gap years are imputed, never skipped, so the
// year spacing seen by the trend model is uniform.
type Series struct {
	EntityKey string
	Sector    string
	Points    []api.Observation
}

// Values returns the amounts in year order.
func (s *Series) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.Amount
	}
	return vals
}

// LastYear returns the final (most recent) year of the series.
func (s *Series) LastYear() int {
	return s.Points[len(s.Points)-1].Year
}

// ObservedCount returns the number of non-imputed points.
func (s *Series) ObservedCount() int {
	n := 0
	for _, p := range s.Points {
		if !p.Imputed {
			n++
		}
	}
	return n
}

// FeatureSet holds the engineered feature matrix for a series. Rows align
// with Series.Points; Names gives the column order. Provenance records how
// each feature column was filled, for transparency in responses and logs.
type FeatureSet struct {
	Names      []string
	Rows       [][]float64
	Target     []float64
	Provenance map[string]string
}

// Row returns the feature row at index i.
func (fs *FeatureSet) Row(i int) []float64 {
	return fs.Rows[i]
}

// MeanRow returns the column-wise mean feature vector, used as the
// attribution baseline.
func (fs *FeatureSet) MeanRow() []float64 {
	mean := make([]float64, len(fs.Names))
	if len(fs.Rows) == 0 {
		return mean
	}
	for _, row := range fs.Rows {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(fs.Rows))
	}
	return mean
}

// Build assembles the observation series for one entity from per-year
// aggregated amounts. Years outside the supported window are ignored.
// Interior gaps are linearly interpolated between the nearest observed
// years. Fewer than 2 in-window observations fails with
// api.ErrInsufficientHistory.
func Build(entityKey, sector string, observed map[int]float64) (*Series, error) {
	years := make([]int, 0, len(observed))
	for y := range observed {
		if y >= api.WindowStart && y <= api.WindowEnd {
			years = append(years, y)
		}
	}
	if len(years) < 2 {
		return nil, fmt.Errorf("%w: entity %q has %d observed years in %d-%d",
			api.ErrInsufficientHistory, entityKey, len(years), api.WindowStart, api.WindowEnd)
	}
	sort.Ints(years)

	first, last := years[0], years[len(years)-1]
	points := make([]api.Observation, 0, last-first+1)

	prevIdx := 0
	for y := first; y <= last; y++ {
		if amt, ok := observed[y]; ok {
			points = append(points, api.Observation{Year: y, Amount: math.Max(0, amt)})
			for prevIdx < len(years)-1 && years[prevIdx+1] <= y {
				prevIdx++
			}
			continue
		}
		// Gap year: interpolate between the nearest observed neighbors.
		lo := years[prevIdx]
		hi := years[prevIdx+1]
		frac := float64(y-lo) / float64(hi-lo)
		amt := observed[lo] + frac*(observed[hi]-observed[lo])
		points = append(points, api.Observation{Year: y, Amount: math.Max(0, amt), Imputed: true})
	}

	return &Series{EntityKey: entityKey, Sector: sector, Points: points}, nil
}

// BuildFeatures engineers the contextual feature matrix for a series.
// indicators maps year to externally supplied indicator values (economic,
// development, governance proxies); they are passed through unmodified when
// present, imputed carry-forward then global-mean otherwise.
func BuildFeatures(s *Series, indicators map[int]map[string]float64) *FeatureSet {
	n := len(s.Points)
	amounts := s.Values()

	extNames := indicatorNames(indicators)
	names := make([]string, 0, len(baseFeatures)+len(extNames))
	names = append(names, baseFeatures...)
	names = append(names, extNames...)

	prov := make(map[string]string, len(names))
	for _, name := range baseFeatures {
		prov[name] = ImputeNone
	}

	cycle := float64(n)
	if cycle < 8 {
		cycle = 8
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 0, len(names))

		lag1 := amounts[0]
		if i > 0 {
			lag1 = amounts[i-1]
		}

		row = append(row,
			float64(i),
			lag1,
			trailingMean(amounts, i, 3),
			trailingVolatility(amounts, i, 3),
			growthRate(amounts, i),
			math.Sin(2*math.Pi*float64(i)/cycle),
			math.Cos(2*math.Pi*float64(i)/cycle),
		)
		rows[i] = row
	}

	appendIndicators(s, rows, extNames, indicators, prov)

	return &FeatureSet{Names: names, Rows: rows, Target: amounts, Provenance: prov}
}

// SyntheticRow builds the feature row for a future year during the
// autoregressive rollout: history carries the realized amounts followed by
// the model's own earlier predictions, idx is the year index of the row
// being predicted, and ext supplies the (held constant) external indicator
// values from the last observed year.
func SyntheticRow(history []float64, idx int, cycleLen float64, ext []float64) []float64 {
	n := len(history)
	lag1 := history[n-1]
	row := []float64{
		float64(idx),
		lag1,
		trailingMean(history, n, 3),
		trailingVolatility(history, n, 3),
		growthRate(history, n),
		math.Sin(2 * math.Pi * float64(idx) / cycleLen),
		math.Cos(2 * math.Pi * float64(idx) / cycleLen),
	}
	return append(row, ext...)
}

// CycleLength returns the seasonal cycle length used for the sin/cos
// features, matching BuildFeatures.
func CycleLength(n int) float64 {
	if n < 8 {
		return 8
	}
	return float64(n)
}

func indicatorNames(indicators map[int]map[string]float64) []string {
	seen := map[string]bool{}
	for _, byName := range indicators {
		for name := range byName {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func appendIndicators(s *Series, rows [][]float64, extNames []string, indicators map[int]map[string]float64, prov map[string]string) {
	for _, name := range extNames {
		// Global mean over the years that do have the indicator, the
		// imputation of last resort.
		sum, cnt := 0.0, 0
		for _, byName := range indicators {
			if v, ok := byName[name]; ok {
				sum += v
				cnt++
			}
		}
		globalMean := 0.0
		if cnt > 0 {
			globalMean = sum / float64(cnt)
		}

		method := ImputeNone
		var lastKnown float64
		haveKnown := false
		for i, p := range s.Points {
			v, ok := 0.0, false
			if byName, exists := indicators[p.Year]; exists {
				v, ok = byName[name]
			}
			switch {
			case ok:
				lastKnown, haveKnown = v, true
			case haveKnown:
				v = lastKnown
				if method == ImputeNone {
					method = ImputeCarryForward
				}
			default:
				v = globalMean
				method = ImputeGlobalMean
			}
			rows[i] = append(rows[i], v)
		}
		prov[name] = method
	}
}

// trailingMean averages up to window values ending just before index i for
// rollout rows (i == len(vals)) or including i for in-sample rows.
func trailingMean(vals []float64, i, window int) float64 {
	end := i + 1
	if end > len(vals) {
		end = len(vals)
	}
	start := end - window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range vals[start:end] {
		sum += v
	}
	return sum / float64(end-start)
}

// trailingVolatility is the standard deviation of year-over-year percent
// change across the trailing window. Fewer than 2 changes yields 0.
func trailingVolatility(vals []float64, i, window int) float64 {
	end := i + 1
	if end > len(vals) {
		end = len(vals)
	}
	start := end - window - 1
	if start < 0 {
		start = 0
	}
	changes := make([]float64, 0, window)
	for k := start + 1; k < end; k++ {
		if vals[k-1] != 0 {
			changes = append(changes, (vals[k]-vals[k-1])/math.Abs(vals[k-1]))
		}
	}
	if len(changes) < 2 {
		return 0
	}
	mean := 0.0
	for _, c := range changes {
		mean += c
	}
	mean /= float64(len(changes))
	varSum := 0.0
	for _, c := range changes {
		varSum += (c - mean) * (c - mean)
	}
	return math.Sqrt(varSum / float64(len(changes)))
}

func growthRate(vals []float64, i int) float64 {
	end := i + 1
	if end > len(vals) {
		end = len(vals)
	}
	if end < 2 {
		return 0
	}
	prev := vals[end-2]
	if prev == 0 {
		return 0
	}
	return (vals[end-1] - prev) / math.Abs(prev)
}

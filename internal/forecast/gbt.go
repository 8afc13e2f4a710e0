package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/series"
)

// Fixed, deterministic gradient boosting configuration. No hyperparameter
// search: identical inputs must always produce identical forecasts.
const (
	gbtTreeCount    = 150
	gbtMaxDepth     = 3
	gbtLearningRate = 0.08
	gbtMinLeaf      = 1

	// MinFeatureYears is the minimum usable entity-years below which the
	// feature model is skipped and the ensemble falls back to trend alone.
	MinFeatureYears = 4
)

// FeatureModel is a gradient-boosted regression tree ensemble trained on the
// engineered entity-year features. It predicts future years iteratively,
// feeding its own predictions back into the lag and rolling features.
type FeatureModel struct {
	trees    []*regressionTree
	baseline float64 // initial prediction: mean of training targets
	features *series.FeatureSet
	score    float64
}

// FitFeatureModel trains the boosted ensemble on all usable entity-years.
// It returns api.ErrNoFeatureModel when fewer than MinFeatureYears rows are
// available, and honors ctx cancellation between boosting rounds (the
// cooperative check required by the fitting budget).
func FitFeatureModel(ctx context.Context, fs *series.FeatureSet) (*FeatureModel, error) {
	if len(fs.Rows) < MinFeatureYears {
		return nil, fmt.Errorf("%w: %d usable entity-years, need >=%d",
			api.ErrNoFeatureModel, len(fs.Rows), MinFeatureYears)
	}

	m, err := boost(ctx, fs.Rows, fs.Target)
	if err != nil {
		return nil, err
	}
	m.features = fs
	m.score = featureBacktest(ctx, fs)
	return m, nil
}

func boost(ctx context.Context, rows [][]float64, target []float64) (*FeatureModel, error) {
	m := &FeatureModel{}
	for _, y := range target {
		m.baseline += y
	}
	m.baseline /= float64(len(target))

	preds := make([]float64, len(target))
	for i := range preds {
		preds[i] = m.baseline
	}

	residuals := make([]float64, len(target))
	for round := 0; round < gbtTreeCount; round++ {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: stopped at boosting round %d", api.ErrFittingTimeout, round)
			}
			return nil, fmt.Errorf("fitting cancelled at boosting round %d: %w", round, ctx.Err())
		default:
		}

		for i := range target {
			residuals[i] = target[i] - preds[i]
		}
		tree := growTree(rows, residuals, 0)
		m.trees = append(m.trees, tree)
		for i, row := range rows {
			preds[i] += gbtLearningRate * tree.predict(row)
		}
	}
	return m, nil
}

// Predict evaluates the ensemble on one feature row.
func (m *FeatureModel) Predict(row []float64) float64 {
	out := m.baseline
	for _, t := range m.trees {
		out += gbtLearningRate * t.predict(row)
	}
	return out
}

// Score returns the leave-last-N-out backtest accuracy in [0, 100].
func (m *FeatureModel) Score() float64 { return m.score }

// FeatureNames returns the model's input column order.
func (m *FeatureModel) FeatureNames() []string { return m.features.Names }

// BaselineRow returns the population-mean feature vector used as the
// attribution reference.
func (m *FeatureModel) BaselineRow() []float64 { return m.features.MeanRow() }

// LastRow returns the most recent in-sample feature row.
func (m *FeatureModel) LastRow() []float64 {
	return m.features.Rows[len(m.features.Rows)-1]
}

// Rollout predicts horizon future years autoregressively, returning the
// prediction points and the synthetic feature row of the final year (the row
// the explainer attributes). The bound width is derived from the backtest
// error and widens with sqrt(distance).
func (m *FeatureModel) Rollout(s *series.Series, horizon int) ([]api.PredictionPoint, []float64) {
	history := append([]float64(nil), s.Values()...)
	n := len(history)
	cycle := series.CycleLength(n)
	ext := m.externalTail()

	// Interval width from backtest accuracy, the same conversion the
	// original engine used: lower accuracy, wider intervals.
	confFrac := (100-m.score)/100*0.25 + 0.10

	points := make([]api.PredictionPoint, 0, horizon)
	lastYear := s.LastYear()
	var finalRow []float64
	for h := 1; h <= horizon; h++ {
		row := series.SyntheticRow(history, n-1+h, cycle, ext)
		finalRow = row
		predicted := math.Max(0, m.Predict(row))
		history = append(history, predicted)

		spread := math.Abs(predicted) * confFrac * math.Sqrt(float64(h))
		if spread == 0 {
			spread = confFrac * math.Sqrt(float64(h))
		}
		points = append(points, api.PredictionPoint{
			Year:      lastYear + h,
			Predicted: predicted,
			Lower:     math.Max(0, predicted-spread),
			Upper:     predicted + spread,
		})
	}
	return points, finalRow
}

// externalTail extracts the external-indicator suffix of the last in-sample
// row; the rollout holds indicators constant at their latest known values.
func (m *FeatureModel) externalTail() []float64 {
	last := m.LastRow()
	return last[len(series.BaseFeatureNames()):]
}

// featureBacktest holds out the final 1-2 years, retrains, and converts the
// holdout MAPE to a 0-100 accuracy score.
func featureBacktest(ctx context.Context, fs *series.FeatureSet) float64 {
	holdout := 1
	if len(fs.Rows) >= 7 {
		holdout = 2
	}
	cut := len(fs.Rows) - holdout
	if cut < MinFeatureYears {
		return 50
	}

	m, err := boost(ctx, fs.Rows[:cut], fs.Target[:cut])
	if err != nil {
		// Budget ran out between the main fit and the backtest; score
		// neutrally rather than zeroing the feature weight.
		return 50
	}

	var mape float64
	var counted int
	for i := cut; i < len(fs.Rows); i++ {
		actual := fs.Target[i]
		if actual == 0 {
			continue
		}
		pred := m.Predict(fs.Rows[i])
		mape += math.Abs(pred-actual) / math.Abs(actual) * 100
		counted++
	}
	if counted == 0 {
		return 50
	}
	mape /= float64(counted)
	return 100 - clamp(mape, 0, 100)
}

// regressionTree is a depth-limited CART tree fit to boosting residuals.
// Splits are chosen greedily over midpoints of sorted unique values, which
// is fully deterministic.
type regressionTree struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *regressionTree
	right     *regressionTree
}

func growTree(rows [][]float64, residuals []float64, depth int) *regressionTree {
	if depth >= gbtMaxDepth || len(rows) <= gbtMinLeaf {
		return &regressionTree{leaf: true, value: meanOf(residuals)}
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	baseSSE := sse(residuals, meanOf(residuals))

	for f := 0; f < len(rows[0]); f++ {
		for _, thr := range splitCandidates(rows, f) {
			leftRes := make([]float64, 0, len(rows))
			rightRes := make([]float64, 0, len(rows))
			for i, row := range rows {
				if row[f] <= thr {
					leftRes = append(leftRes, residuals[i])
				} else {
					rightRes = append(rightRes, residuals[i])
				}
			}
			if len(leftRes) < gbtMinLeaf || len(rightRes) < gbtMinLeaf {
				continue
			}
			gain := baseSSE - sse(leftRes, meanOf(leftRes)) - sse(rightRes, meanOf(rightRes))
			if gain > bestGain+1e-12 {
				bestFeature, bestThreshold, bestGain = f, thr, gain
			}
		}
	}

	if bestFeature < 0 {
		return &regressionTree{leaf: true, value: meanOf(residuals)}
	}

	leftRows, leftRes := [][]float64{}, []float64{}
	rightRows, rightRes := [][]float64{}, []float64{}
	for i, row := range rows {
		if row[bestFeature] <= bestThreshold {
			leftRows = append(leftRows, row)
			leftRes = append(leftRes, residuals[i])
		} else {
			rightRows = append(rightRows, row)
			rightRes = append(rightRes, residuals[i])
		}
	}

	return &regressionTree{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      growTree(leftRows, leftRes, depth+1),
		right:     growTree(rightRows, rightRes, depth+1),
	}
}

func (t *regressionTree) predict(row []float64) float64 {
	if t.leaf {
		return t.value
	}
	if row[t.feature] <= t.threshold {
		return t.left.predict(row)
	}
	return t.right.predict(row)
}

func splitCandidates(rows [][]float64, feature int) []float64 {
	vals := make([]float64, len(rows))
	for i, row := range rows {
		vals[i] = row[feature]
	}
	sort.Float64s(vals)
	candidates := make([]float64, 0, len(vals))
	for i := 1; i < len(vals); i++ {
		if vals[i] != vals[i-1] {
			candidates = append(candidates, (vals[i]+vals[i-1])/2)
		}
	}
	return candidates
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sse(vals []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += (v - mean) * (v - mean)
	}
	return sum
}

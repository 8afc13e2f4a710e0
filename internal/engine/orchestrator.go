// Package engine orchestrates a forecast request end to end: validation,
// series assembly, concurrent model fitting, blending, and on-demand
// attribution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/cache"
	"github.com/aidlens/aidlens/internal/explain"
	"github.com/aidlens/aidlens/internal/forecast"
	"github.com/aidlens/aidlens/internal/metrics"
	"github.com/aidlens/aidlens/internal/series"
	"github.com/aidlens/aidlens/internal/store"
)

const (
	// DefaultFitBudget bounds feature-model fitting. Exceeding it degrades
	// the request to a trend-only result instead of hanging it.
	DefaultFitBudget = 2 * time.Second

	defaultMemoSize = 512
	defaultMemoTTL  = 10 * time.Minute
)

// Options configures an Engine.
type Options struct {
	FitBudget time.Duration
	MemoSize  int
	MemoTTL   time.Duration
	Shared    *cache.SharedForecasts // optional cross-instance cache
	Metrics   *metrics.Metrics       // optional
	Log       *logrus.Logger         // optional
}

// Engine coordinates the series builder, the two forecasters, the blender,
// and the explainer. It is safe for concurrent use; per-request state is
// never shared across requests.
type Engine struct {
	source  store.Source
	memo    *cache.Memo[*fitted]
	shared  *cache.SharedForecasts
	metrics *metrics.Metrics
	log     *logrus.Entry
	budget  time.Duration
	tracer  trace.Tracer
}

// fitted is the per-request-key memo entry: the shaped result plus the
// fitted artifacts an explanation needs. featureModel is nil when the
// feature forecaster was skipped or timed out.
type fitted struct {
	result       *api.ForecastResult
	featureModel *forecast.FeatureModel
	finalRow     []float64
}

// New creates an Engine reading from source.
func New(source store.Source, opts Options) (*Engine, error) {
	if opts.FitBudget <= 0 {
		opts.FitBudget = DefaultFitBudget
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = defaultMemoSize
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = defaultMemoTTL
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}

	memo, err := cache.NewMemo[*fitted](opts.MemoSize, opts.MemoTTL)
	if err != nil {
		return nil, fmt.Errorf("create forecast memo: %w", err)
	}

	return &Engine{
		source:  source,
		memo:    memo,
		shared:  opts.Shared,
		metrics: opts.Metrics,
		log:     opts.Log.WithField("component", "engine"),
		budget:  opts.FitBudget,
		tracer:  otel.Tracer("aidlens/engine"),
	}, nil
}

// Forecast handles one forecast request. Validation failures return before
// any fitting; fitting-stage trouble degrades to a trend-only result rather
// than failing the request.
func (e *Engine) Forecast(ctx context.Context, req api.ForecastRequest) (*api.ForecastResult, error) {
	if err := req.Validate(); err != nil {
		e.countError("invalid_request")
		return nil, err
	}

	key := req.CacheKey()
	if hit, ok := e.memo.Get(key); ok {
		e.countCache(true)
		return hit.result, nil
	}
	if e.shared != nil {
		cached, err := e.shared.Get(ctx, key)
		if err != nil {
			e.log.WithError(err).Warn("shared forecast cache read failed")
		} else if cached != nil {
			// Another instance already fitted this request. The fitted
			// artifacts stay remote; an explanation will refit locally.
			e.countCache(true)
			return cached, nil
		}
	}
	e.countCache(false)

	fit, err := e.compute(ctx, req)
	if err != nil {
		return nil, err
	}

	e.memo.Put(key, fit)
	if e.shared != nil {
		if err := e.shared.Put(ctx, key, fit.result); err != nil {
			e.log.WithError(err).Warn("shared forecast cache write failed")
		}
	}
	return fit.result, nil
}

// Explain computes the feature attribution for the forecast identified by
// the request parameters, recomputing the forecast if it is no longer
// memoized. A skipped feature model surfaces api.ErrNoFeatureModel.
func (e *Engine) Explain(ctx context.Context, req api.ForecastRequest) (*api.ExplanationResult, error) {
	if err := req.Validate(); err != nil {
		e.countError("invalid_request")
		return nil, err
	}

	key := req.CacheKey()
	fit, ok := e.memo.Get(key)
	if !ok {
		var err error
		fit, err = e.compute(ctx, req)
		if err != nil {
			return nil, err
		}
		e.memo.Put(key, fit)
	}

	if fit.featureModel == nil {
		e.countError("no_feature_model")
		return nil, fmt.Errorf("%w: forecast for %q is trend-only", api.ErrNoFeatureModel, req.EntityKey)
	}

	_, span := e.tracer.Start(ctx, "engine.explain",
		trace.WithAttributes(attribute.String("entity", req.EntityKey)))
	defer span.End()

	result := explain.Attribute(fit.featureModel, fit.finalRow, req.EntityKey, fit.result.SectorFilter)
	if e.metrics != nil {
		e.metrics.ExplanationsTotal.Inc()
	}
	return &result, nil
}

// AccuracySummary backtests a reference entity and reports per-model scores,
// for the dashboard's accuracy widget.
func (e *Engine) AccuracySummary(ctx context.Context, referenceEntity string) (*api.AccuracyReport, error) {
	result, err := e.Forecast(ctx, api.ForecastRequest{
		EntityKey:    referenceEntity,
		SectorFilter: "all",
		HorizonYears: 3,
		Model:        api.ModelHybrid,
	})
	if err != nil {
		return nil, err
	}
	return &result.Accuracy, nil
}

// Warm precomputes hybrid forecasts for every known entity into the caches.
// Individual entity failures are logged and skipped.
func (e *Engine) Warm(ctx context.Context, horizon int) (int, error) {
	entities, err := e.source.Entities(ctx)
	if err != nil {
		return 0, fmt.Errorf("list entities: %w", err)
	}

	warmed := 0
	for _, entity := range entities {
		if ctx.Err() != nil {
			return warmed, ctx.Err()
		}
		_, err := e.Forecast(ctx, api.ForecastRequest{
			EntityKey:    entity,
			SectorFilter: "all",
			HorizonYears: horizon,
			Model:        api.ModelHybrid,
		})
		if err != nil {
			e.log.WithError(err).WithField("entity", entity).Debug("warm-up skipped entity")
			continue
		}
		warmed++
	}
	return warmed, nil
}

// compute runs the full fitting pipeline for a validated request.
func (e *Engine) compute(ctx context.Context, req api.ForecastRequest) (*fitted, error) {
	ctx, span := e.tracer.Start(ctx, "engine.forecast",
		trace.WithAttributes(
			attribute.String("entity", req.EntityKey),
			attribute.String("model", string(req.Model)),
			attribute.Int("horizon", req.HorizonYears),
		))
	defer span.End()

	s, features, err := e.buildSeries(ctx, req)
	if err != nil {
		return nil, err
	}

	trendModel, featureModel, degraded, err := e.fitModels(ctx, req, s, features)
	if err != nil {
		return nil, err
	}

	trendPts := trendModel.Predict(s.LastYear(), req.HorizonYears)

	var featPts []api.PredictionPoint
	var finalRow []float64
	var featScore float64
	if featureModel != nil {
		featPts, finalRow = featureModel.Rollout(s, req.HorizonYears)
		featScore = featureModel.Score()
	}

	predictions, accuracy := e.shape(req, trendPts, trendModel.Score(), featPts, featScore, degraded)

	result := &api.ForecastResult{
		EntityKey:    req.EntityKey,
		SectorFilter: store.NormalizeSector(req.SectorFilter),
		Predictions:  predictions,
		Accuracy:     accuracy,
		Insights:     forecast.Insights(s, trendModel, accuracy),
		GeneratedAt:  time.Now().UTC(),
	}

	if e.metrics != nil {
		e.metrics.ForecastsTotal.WithLabelValues(string(req.Model)).Inc()
		if degraded {
			e.metrics.DegradedTotal.Inc()
		}
	}
	e.log.WithFields(logrus.Fields{
		"entity":   req.EntityKey,
		"sector":   result.SectorFilter,
		"horizon":  req.HorizonYears,
		"model":    req.Model,
		"hybrid":   accuracy.HybridScore,
		"degraded": degraded,
	}).Info("forecast computed")

	return &fitted{result: result, featureModel: featureModel, finalRow: finalRow}, nil
}

func (e *Engine) buildSeries(ctx context.Context, req api.ForecastRequest) (*series.Series, *series.FeatureSet, error) {
	ctx, span := e.tracer.Start(ctx, "engine.build_series")
	defer span.End()

	totals, err := e.source.YearlyTotals(ctx, req.EntityKey, req.SectorFilter)
	if err != nil {
		if errors.Is(err, api.ErrUnknownEntity) {
			e.countError("unknown_entity")
		}
		return nil, nil, err
	}

	indicators, err := e.source.Indicators(ctx, req.EntityKey)
	if err != nil {
		// Indicators are auxiliary; the engineered base features still
		// stand on their own.
		e.log.WithError(err).WithField("entity", req.EntityKey).Warn("indicator fetch failed, continuing without")
		indicators = nil
	}

	s, err := series.Build(req.EntityKey, store.NormalizeSector(req.SectorFilter), totals)
	if err != nil {
		e.countError("insufficient_history")
		return nil, nil, err
	}
	return s, series.BuildFeatures(s, indicators), nil
}

// fitModels runs the two forecasters concurrently. The trend fit cannot
// fail; the feature fit runs under the fitting budget and its absence is a
// degradation, not an error. Caller cancellation is the exception: it aborts
// the request.
func (e *Engine) fitModels(ctx context.Context, req api.ForecastRequest, s *series.Series, features *series.FeatureSet) (*forecast.TrendModel, *forecast.FeatureModel, bool, error) {
	ctx, span := e.tracer.Start(ctx, "engine.fit")
	defer span.End()

	var (
		trendModel   *forecast.TrendModel
		featureModel *forecast.FeatureModel
		degraded     bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		trendModel = forecast.FitTrend(s)
		e.observeFit("trend", start)
		return nil
	})

	if req.Model != api.ModelTrend {
		g.Go(func() error {
			start := time.Now()
			fitCtx, cancel := context.WithTimeout(gctx, e.budget)
			defer cancel()

			m, err := forecast.FitFeatureModel(fitCtx, features)
			switch {
			case err == nil:
				featureModel = m
				e.observeFit("feature", start)
			case errors.Is(err, api.ErrNoFeatureModel):
				e.log.WithField("entity", req.EntityKey).Debug("feature model skipped: short history")
			case errors.Is(err, api.ErrFittingTimeout) && ctx.Err() == nil:
				degraded = true
				e.countError("fitting_timeout")
				e.log.WithField("entity", req.EntityKey).Warn("feature fitting exceeded budget, degrading to trend-only")
			default:
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}
	if err := ctx.Err(); err != nil {
		// Caller abandoned the request: stop, produce nothing.
		return nil, nil, false, err
	}
	return trendModel, featureModel, degraded, nil
}

// shape applies the requested model choice to the fitted components.
func (e *Engine) shape(req api.ForecastRequest, trendPts []api.PredictionPoint, trendScore float64, featPts []api.PredictionPoint, featScore float64, degraded bool) ([]api.PredictionPoint, api.AccuracyReport) {
	switch req.Model {
	case api.ModelTrend:
		predictions, accuracy := forecast.Blend(trendPts, trendScore, nil, 0, false)
		accuracy.Method = "Trend Decomposition"
		return predictions, accuracy

	case api.ModelFeature:
		if featPts == nil {
			return forecast.Blend(trendPts, trendScore, nil, 0, degraded)
		}
		// Feature-driven mode returns the feature model's own projection;
		// the blended report is kept for comparison columns.
		_, accuracy := forecast.Blend(trendPts, trendScore, featPts, featScore, false)
		accuracy.Method = "Gradient Boosting"
		accuracy.Confidence = accuracy.FeatureScore
		return featPts, accuracy

	default: // hybrid
		return forecast.Blend(trendPts, trendScore, featPts, featScore, degraded)
	}
}

func (e *Engine) observeFit(model string, start time.Time) {
	if e.metrics != nil {
		e.metrics.FitDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) countError(class string) {
	if e.metrics != nil {
		e.metrics.ForecastErrors.WithLabelValues(class).Inc()
	}
}

func (e *Engine) countCache(hit bool) {
	if e.metrics == nil {
		return
	}
	if hit {
		e.metrics.CacheHits.Inc()
	} else {
		e.metrics.CacheMisses.Inc()
	}
}

package api

import (
	"fmt"
	"strings"
	"time"
)

// Supported historical window. Records outside this range are ignored by the
// series builder; forecast years start at WindowEnd+1.
const (
	WindowStart = 2015
	WindowEnd   = 2023

	MinHorizonYears = 1
	MaxHorizonYears = 5
)

// ModelChoice selects which forecaster(s) drive the response.
type ModelChoice string

const (
	ModelTrend   ModelChoice = "trend"
	ModelFeature ModelChoice = "feature-driven"
	ModelHybrid  ModelChoice = "hybrid"
)

// ForecastRequest is the engine's input contract.
type ForecastRequest struct {
	EntityKey    string      `json:"entity_key"`
	SectorFilter string      `json:"sector_filter"` // "all" or a normalized sector name
	HorizonYears int         `json:"horizon_years"`
	Model        ModelChoice `json:"model"`
	Explain      bool        `json:"explain"`
}

// CacheKey identifies a forecast by its exact request parameters. Explain is
// excluded: an explanation reuses the forecast computed for the same key.
func (r *ForecastRequest) CacheKey() string {
	sector := r.SectorFilter
	if sector == "" {
		sector = "all"
	}
	return fmt.Sprintf("%s|%s|%d|%s", strings.ToLower(r.EntityKey), strings.ToLower(sector), r.HorizonYears, r.Model)
}

// Validate checks request bounds before any model fitting is attempted.
func (r *ForecastRequest) Validate() error {
	if strings.TrimSpace(r.EntityKey) == "" {
		return fmt.Errorf("%w: empty entity key", ErrInvalidRequest)
	}
	if r.HorizonYears < MinHorizonYears || r.HorizonYears > MaxHorizonYears {
		return fmt.Errorf("%w: horizon_years %d outside [%d, %d]", ErrInvalidRequest, r.HorizonYears, MinHorizonYears, MaxHorizonYears)
	}
	switch r.Model {
	case ModelTrend, ModelFeature, ModelHybrid:
	case "":
		r.Model = ModelHybrid
	default:
		return fmt.Errorf("%w: unknown model %q", ErrInvalidRequest, r.Model)
	}
	return nil
}

// Observation is one (year, amount) point of an entity's history.
// Imputed marks values reconstructed by interpolation rather than observed.
type Observation struct {
	Year    int     `json:"year"`
	Amount  float64 `json:"amount"`
	Imputed bool    `json:"imputed,omitempty"`
}

// PredictionPoint is one forecast year with its confidence interval.
// Invariant: Lower <= Predicted <= Upper.
type PredictionPoint struct {
	Year      int     `json:"year"`
	Predicted float64 `json:"predicted"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// AccuracyReport carries backtest-derived scores, all in [0, 100].
type AccuracyReport struct {
	TrendScore   float64 `json:"trend"`
	FeatureScore float64 `json:"feature_driven"`
	HybridScore  float64 `json:"hybrid"`
	Confidence   float64 `json:"confidence"`
	Method       string  `json:"method"`
	Degraded     bool    `json:"degraded,omitempty"`
}

// ForecastResult is the full forecast response.
type ForecastResult struct {
	EntityKey    string            `json:"entity_key"`
	SectorFilter string            `json:"sector_filter"`
	Predictions  []PredictionPoint `json:"predictions"`
	Accuracy     AccuracyReport    `json:"accuracy"`
	Insights     []string          `json:"insights"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// Explanation is one feature's marginal contribution to a prediction.
type Explanation struct {
	Feature     string  `json:"feature"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

// ExplanationResult carries the full attribution for one forecast.
// Invariant: BaseValue + sum(Explanations[i].Impact) == ModelPrediction
// within a small numeric tolerance.
type ExplanationResult struct {
	Explanations    []Explanation `json:"explanations"`
	BaseValue       float64       `json:"base_value"`
	ModelPrediction float64       `json:"model_prediction"`
	EntityKey       string        `json:"entity_key"`
	SectorFilter    string        `json:"sector_filter"`
}

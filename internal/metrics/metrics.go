package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	ForecastsTotal    *prometheus.CounterVec
	ForecastErrors    *prometheus.CounterVec
	DegradedTotal     prometheus.Counter
	ExplanationsTotal prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	FitDuration       *prometheus.HistogramVec
}

// New creates and registers all engine metrics.
func New() *Metrics {
	return &Metrics{
		ForecastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aidlens_forecasts_total",
				Help: "Forecasts served, by model choice",
			},
			[]string{"model"},
		),
		ForecastErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aidlens_forecast_errors_total",
				Help: "Forecast requests failed, by error class",
			},
			[]string{"class"},
		),
		DegradedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aidlens_degraded_total",
			Help: "Forecasts that fell back to trend-only mode",
		}),
		ExplanationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aidlens_explanations_total",
			Help: "Attribution explanations computed",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aidlens_forecast_cache_hits",
			Help: "Forecast requests served from the request-keyed cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aidlens_forecast_cache_misses",
			Help: "Forecast requests that required fresh model fitting",
		}),
		FitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aidlens_fit_duration_seconds",
				Help:    "Model fitting duration, by model",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"model"},
		),
	}
}

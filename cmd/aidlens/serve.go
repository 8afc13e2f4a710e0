package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/aidlens/aidlens/internal/api"
	"github.com/aidlens/aidlens/internal/engine"
	"github.com/aidlens/aidlens/internal/metrics"
	"github.com/aidlens/aidlens/pkg/otel"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the forecasting HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

type server struct {
	engine  *engine.Engine
	limiter *rate.Limiter
}

func runServe(ctx context.Context) error {
	if cfg.Otel.Enabled {
		tp, err := otel.InitTracer(ctx, &otel.Config{
			ServiceName:       "aidlens",
			ServiceVersion:    "0.1.0",
			CollectorEndpoint: cfg.Otel.Endpoint,
			SamplingRate:      1.0,
		})
		if err != nil {
			log.WithError(err).Warn("tracing disabled: OTLP exporter init failed")
		} else {
			defer func() {
				if err := otel.Shutdown(context.Background(), tp); err != nil {
					log.WithError(err).Warn("tracer shutdown failed")
				}
			}()
		}
	}

	m := metrics.New()
	eng, cleanup, err := buildEngine(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &server{
		engine:  eng,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit*2),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/forecasting/forecast", srv.handleForecast)
	mux.HandleFunc("POST /api/forecasting/shap-explanations", srv.handleExplain)
	mux.HandleFunc("GET /api/forecasting/accuracy", srv.handleAccuracy)
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /health", handleHealth)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-shutdown:
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// forecastResponse is the forecast envelope; Explanation is present only
// when the request set explain=true and the feature model was available.
type forecastResponse struct {
	*api.ForecastResult
	Explanation      *api.ExplanationResult `json:"explanation,omitempty"`
	ExplanationState string                 `json:"explanation_state,omitempty"`
}

func (s *server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w) {
		return
	}

	var req api.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.Forecast(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := forecastResponse{ForecastResult: result}
	if req.Explain {
		explanation, err := s.engine.Explain(r.Context(), req)
		switch {
		case err == nil:
			resp.Explanation = explanation
		case errors.Is(err, api.ErrNoFeatureModel):
			// The forecast stands; the explanation is pending, not broken.
			resp.ExplanationState = "not_yet_available"
		default:
			writeEngineError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w) {
		return
	}

	var req api.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.Explain(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w) {
		return
	}

	report, err := s.engine.AccuracySummary(r.Context(), cfg.ReferenceEntity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trend":             report.TrendScore,
		"feature_driven":    report.FeatureScore,
		"hybrid":            report.HybridScore,
		"validation_method": "leave-last-N-years-out backtest",
	})
}

func (s *server) admit(w http.ResponseWriter) bool {
	if s.limiter.Allow() {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// metricsHandler guards /metrics with basic auth when configured.
func metricsHandler() http.Handler {
	inner := promhttp.Handler()
	if cfg.MetricsUser == "" {
		return inner
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != cfg.MetricsUser || pass != cfg.MetricsPass {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("forecast request failed")
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("response encoding failed")
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/aidlens/aidlens/internal/cache"
	"github.com/aidlens/aidlens/internal/config"
	"github.com/aidlens/aidlens/internal/engine"
	"github.com/aidlens/aidlens/internal/metrics"
	"github.com/aidlens/aidlens/internal/store"
)

// buildEngine wires the configured store and caches into an Engine.
// The returned cleanup closes everything in reverse order.
func buildEngine(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*engine.Engine, func(), error) {
	var source store.Source
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		source = pg
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory demo store")
		source = demoStore()
	}

	var shared *cache.SharedForecasts
	if cfg.RedisAddr != "" {
		var err error
		shared, err = cache.NewSharedForecasts(ctx, cfg.RedisAddr, cfg.SharedTTL.Std())
		if err != nil {
			source.Close()
			return nil, nil, fmt.Errorf("shared forecast cache: %w", err)
		}
	}

	eng, err := engine.New(source, engine.Options{
		FitBudget: cfg.FitBudget.Std(),
		MemoSize:  cfg.MemoSize,
		MemoTTL:   cfg.MemoTTL.Std(),
		Shared:    shared,
		Metrics:   m,
		Log:       log,
	})
	if err != nil {
		if shared != nil {
			shared.Close()
		}
		source.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if shared != nil {
			shared.Close()
		}
		source.Close()
	}
	return eng, cleanup, nil
}

// demoStore seeds a small fixture so the engine is usable without Postgres.
// Amounts are USD millions.
func demoStore() *store.MemoryStore {
	ms := store.NewMemoryStore()

	india := []float64{3200, 3450, 3100, 3900, 4200, 4800, 5100, 5600, 6100}
	kenya := []float64{2400, 2500, 2450, 2600, 2580, 2700, 2650, 2800, 2750}
	nepal := []float64{900, 940, 1700, 980, 1010, 1050, 1080, 1120, 1160}
	for i, amount := range india {
		ms.AddRecord("India", "II.1. Economic Infrastructure", 2015+i, amount*0.6)
		ms.AddRecord("India", "I.2. Basic Health", 2015+i, amount*0.4)
	}
	for i, amount := range kenya {
		ms.AddRecord("Kenya", "IV.1. General Environment Protection", 2015+i, amount)
	}
	for i, amount := range nepal {
		// 2017 carries an earthquake-relief spike.
		ms.AddRecord("Nepal", "VIII.1. Emergency Response", 2015+i, amount)
	}

	for i := 0; i < 9; i++ {
		ms.SetIndicator("India", 2015+i, "gdp_growth", 6.5-0.2*float64(i))
		ms.SetIndicator("India", 2015+i, "political_stability", 0.55)
		ms.SetIndicator("Kenya", 2015+i, "gdp_growth", 5.0)
	}
	return ms
}

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aidlens/aidlens/internal/api"
)

// MemoryStore is an in-memory Source for tests and local runs without a
// database. Sector names are normalized on ingest.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]map[string]map[int]float64 // entity → sector → year → amount
	indicators map[string]map[int]map[string]float64 // entity → year → name → value
	names      map[string]string                     // normalized → display entity name
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]map[string]map[int]float64),
		indicators: make(map[string]map[int]map[string]float64),
		names:      make(map[string]string),
	}
}

// AddRecord accumulates one aid record. Raw sector labels are accepted and
// normalized here.
func (m *MemoryStore) AddRecord(entity, rawSector string, year int, amount float64) {
	key := NormalizeEntity(entity)
	sector := NormalizeSector(rawSector)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.names[key] = entity
	bySector, ok := m.records[key]
	if !ok {
		bySector = make(map[string]map[int]float64)
		m.records[key] = bySector
	}
	byYear, ok := bySector[sector]
	if !ok {
		byYear = make(map[int]float64)
		bySector[sector] = byYear
	}
	byYear[year] += amount
}

// SetIndicator records one external indicator value for an entity-year.
func (m *MemoryStore) SetIndicator(entity string, year int, name string, value float64) {
	key := NormalizeEntity(entity)

	m.mu.Lock()
	defer m.mu.Unlock()

	byYear, ok := m.indicators[key]
	if !ok {
		byYear = make(map[int]map[string]float64)
		m.indicators[key] = byYear
	}
	byName, ok := byYear[year]
	if !ok {
		byName = make(map[string]float64)
		byYear[year] = byName
	}
	byName[name] = value
}

func (m *MemoryStore) YearlyTotals(ctx context.Context, entityKey, sector string) (map[int]float64, error) {
	key := NormalizeEntity(entityKey)
	want := NormalizeSector(sector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	bySector, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownEntity, entityKey)
	}

	totals := make(map[int]float64)
	for sec, byYear := range bySector {
		// Substring match, mirroring the SQL store's ILIKE filter.
		if want != "all" && !strings.Contains(strings.ToLower(sec), strings.ToLower(want)) {
			continue
		}
		for year, amount := range byYear {
			totals[year] += amount
		}
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("%w: %q has no records for sector %q", api.ErrUnknownEntity, entityKey, want)
	}
	return totals, nil
}

func (m *MemoryStore) Indicators(ctx context.Context, entityKey string) (map[int]map[string]float64, error) {
	key := NormalizeEntity(entityKey)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]map[string]float64)
	for year, byName := range m.indicators[key] {
		cp := make(map[string]float64, len(byName))
		for name, v := range byName {
			cp[name] = v
		}
		out[year] = cp
	}
	return out, nil
}

func (m *MemoryStore) Entities(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.names))
	for _, display := range m.names {
		names = append(names, display)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }

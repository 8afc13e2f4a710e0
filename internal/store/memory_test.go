package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidlens/aidlens/internal/api"
)

func seededStore() *MemoryStore {
	ms := NewMemoryStore()
	ms.AddRecord("India", "II.1. Economic Infrastructure", 2022, 300)
	ms.AddRecord("India", "II.1. Economic Infrastructure", 2022, 200) // second donor, same year
	ms.AddRecord("India", "I.2. Basic Health", 2022, 100)
	ms.AddRecord("India", "I.2. Basic Health", 2023, 150)
	ms.AddRecord("Kenya", "IV. General Environment Protection", 2022, 50)
	ms.SetIndicator("India", 2022, "gdp_growth", 6.0)
	return ms
}

func TestYearlyTotals_AllSectors(t *testing.T) {
	ms := seededStore()

	totals, err := ms.YearlyTotals(context.Background(), "India", "all")
	require.NoError(t, err)
	assert.InDelta(t, 600.0, totals[2022], 1e-9)
	assert.InDelta(t, 150.0, totals[2023], 1e-9)
}

func TestYearlyTotals_SectorFilter(t *testing.T) {
	ms := seededStore()

	// Filter labels are normalized and matched case-insensitively by
	// substring, so a raw CRS label and a bare fragment both work.
	for _, filter := range []string{"I.2. Basic Health", "basic health", "Health"} {
		totals, err := ms.YearlyTotals(context.Background(), "india", filter)
		require.NoError(t, err, "filter=%q", filter)
		assert.InDelta(t, 100.0, totals[2022], 1e-9)
		assert.InDelta(t, 150.0, totals[2023], 1e-9)
	}
}

func TestYearlyTotals_UnknownEntity(t *testing.T) {
	ms := seededStore()

	_, err := ms.YearlyTotals(context.Background(), "Atlantis", "all")
	require.ErrorIs(t, err, api.ErrUnknownEntity)

	// Known entity, sector with no records.
	_, err = ms.YearlyTotals(context.Background(), "Kenya", "Basic Health")
	require.ErrorIs(t, err, api.ErrUnknownEntity)
}

func TestYearlyTotals_EntityCaseInsensitive(t *testing.T) {
	ms := seededStore()

	totals, err := ms.YearlyTotals(context.Background(), "  iNdIa ", "all")
	require.NoError(t, err)
	assert.InDelta(t, 600.0, totals[2022], 1e-9)
}

func TestIndicators(t *testing.T) {
	ms := seededStore()

	ind, err := ms.Indicators(context.Background(), "india")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, ind[2022]["gdp_growth"], 1e-9)

	// No indicators is not an error; the engine treats them as optional.
	ind, err = ms.Indicators(context.Background(), "Kenya")
	require.NoError(t, err)
	assert.Empty(t, ind)
}

func TestEntities(t *testing.T) {
	ms := seededStore()

	names, err := ms.Entities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"India", "Kenya"}, names)
}

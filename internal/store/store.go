// Package store provides read-only access to historical aid-flow records and
// contextual indicators. The engine consumes it through the Source interface;
// Postgres backs production, the memory store backs tests and local runs.
package store

import (
	"context"
)

// Source is the data-access contract the forecasting engine reads from.
// Implementations must return already-normalized entity and sector names;
// the engine never sees raw enumeration-prefixed sector labels.
type Source interface {
	// YearlyTotals returns the aggregated aid amount per year for an entity,
	// optionally restricted to one sector ("" or "all" means all sectors).
	// Returns api.ErrUnknownEntity when no records exist for the key.
	YearlyTotals(ctx context.Context, entityKey, sector string) (map[int]float64, error)

	// Indicators returns external development/economic indicator values for
	// an entity, keyed by year then indicator name. Partial data is normal;
	// a missing entity yields an empty map, not an error.
	Indicators(ctx context.Context, entityKey string) (map[int]map[string]float64, error)

	// Entities lists the known entity keys, for batch warm-up.
	Entities(ctx context.Context) ([]string, error)

	// Close releases backing resources.
	Close() error
}

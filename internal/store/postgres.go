package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidlens/aidlens/internal/api"
)

// PostgresStore reads aid records from the dashboard's Postgres schema
// (aid_records joined to countries and sectors, indicators keyed by
// country-year).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pgx pool to the given DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const yearlyTotalsSQL = `
SELECT ar.year, SUM(ar.amount)
FROM aid_records ar
JOIN countries c ON ar.country_id = c.id
WHERE LOWER(c.name) = LOWER($1)
GROUP BY ar.year
ORDER BY ar.year`

const yearlyTotalsBySectorSQL = `
SELECT ar.year, SUM(ar.amount)
FROM aid_records ar
JOIN countries c ON ar.country_id = c.id
JOIN sectors s ON ar.sector_id = s.id
WHERE LOWER(c.name) = LOWER($1)
  AND s.name ILIKE '%' || $2 || '%'
GROUP BY ar.year
ORDER BY ar.year`

func (p *PostgresStore) YearlyTotals(ctx context.Context, entityKey, sector string) (map[int]float64, error) {
	want := NormalizeSector(sector)

	var rows pgx.Rows
	var err error
	if want == "all" {
		rows, err = p.pool.Query(ctx, yearlyTotalsSQL, entityKey)
	} else {
		rows, err = p.pool.Query(ctx, yearlyTotalsBySectorSQL, entityKey, want)
	}
	if err != nil {
		return nil, fmt.Errorf("query yearly totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int]float64)
	for rows.Next() {
		var year int
		var amount float64
		if err := rows.Scan(&year, &amount); err != nil {
			return nil, fmt.Errorf("scan yearly total: %w", err)
		}
		totals[year] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate yearly totals: %w", err)
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("%w: %q (sector %q)", api.ErrUnknownEntity, entityKey, want)
	}
	return totals, nil
}

const indicatorsSQL = `
SELECT i.year, i.name, i.value
FROM indicators i
JOIN countries c ON i.country_id = c.id
WHERE LOWER(c.name) = LOWER($1)
ORDER BY i.year, i.name`

func (p *PostgresStore) Indicators(ctx context.Context, entityKey string) (map[int]map[string]float64, error) {
	rows, err := p.pool.Query(ctx, indicatorsSQL, entityKey)
	if err != nil {
		return nil, fmt.Errorf("query indicators: %w", err)
	}
	defer rows.Close()

	out := make(map[int]map[string]float64)
	for rows.Next() {
		var year int
		var name string
		var value float64
		if err := rows.Scan(&year, &name, &value); err != nil {
			return nil, fmt.Errorf("scan indicator: %w", err)
		}
		byName, ok := out[year]
		if !ok {
			byName = make(map[string]float64)
			out[year] = byName
		}
		byName[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indicators: %w", err)
	}
	return out, nil
}

const entitiesSQL = `SELECT name FROM countries ORDER BY name`

func (p *PostgresStore) Entities(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, entitiesSQL)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return names, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

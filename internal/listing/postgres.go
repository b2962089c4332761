package listing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/pricecheck/internal/models"
)

// Schema is the cache table the ingestion worker writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS listings (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	price      TEXT NOT NULL,
	images     TEXT[] NOT NULL DEFAULT '{}',
	url        TEXT NOT NULL DEFAULT '',
	make       TEXT,
	model      TEXT,
	year       INT,
	attributes JSONB,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const sampleQuery = `
SELECT id, title, price, images, url,
       COALESCE(make, ''), COALESCE(model, ''), COALESCE(year, 0),
       COALESCE(attributes, '{}'::jsonb)
FROM listings
WHERE price <> ''
ORDER BY random()
LIMIT $1`

const estimateQuery = `SELECT GREATEST(reltuples, 0)::bigint FROM pg_class WHERE relname = 'listings'`

// querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSource samples the listings table.
type PostgresSource struct {
	db    querier
	count int
}

// NewPostgresSource returns a source reading through db.
func NewPostgresSource(db querier, count int) *PostgresSource {
	if count <= 0 {
		count = DefaultCount
	}
	return &PostgresSource{db: db, count: count}
}

// FetchCandidates returns a random sample. EstimatedTotal comes from the
// planner statistics, so it is approximate and may be 0 before ANALYZE.
func (s *PostgresSource) FetchCandidates(ctx context.Context) (Batch, error) {
	rows, err := s.db.Query(ctx, sampleQuery, s.count)
	if err != nil {
		return Batch{}, fmt.Errorf("query listings: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Item, error) {
		var it models.Item
		var year int32
		err := row.Scan(&it.ID, &it.Title, &it.Price, &it.Images, &it.URL,
			&it.Make, &it.Model, &year, &it.Attributes)
		it.Year = int(year)
		return it, err
	})
	if err != nil {
		return Batch{}, fmt.Errorf("scan listings: %w", err)
	}
	items = filter(items)
	if len(items) == 0 {
		return Batch{}, ErrEmpty
	}

	var estimate int64
	if err := s.db.QueryRow(ctx, estimateQuery).Scan(&estimate); err != nil {
		estimate = 0
	}
	return Batch{Items: items, EstimatedTotal: int(estimate)}, nil
}

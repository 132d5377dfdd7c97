package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"booktrack/searchservice/internal/domain"
)

// PostgresStore backs the durable tier with one row per (cache_key, provider),
// results serialized as jsonb.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the cache table if it does not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS search_cache_entries (
			cache_key  TEXT        NOT NULL,
			provider   TEXT        NOT NULL,
			results    JSONB       NOT NULL,
			stored_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (cache_key, provider)
		)`)
	if err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS search_cache_entries_expires_at_idx ON search_cache_entries (expires_at)`)
	if err != nil {
		return fmt.Errorf("create cache index: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key, provider string) ([]domain.BookResult, bool, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT results FROM search_cache_entries
		 WHERE cache_key = $1 AND provider = $2 AND expires_at > now()`,
		key, provider,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var results []domain.BookResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return results, true, nil
}

// GetStale reads an entry regardless of its expiry. Used as a degraded-mode
// fallback when the provider behind the key is unavailable.
func (p *PostgresStore) GetStale(ctx context.Context, key, provider string) ([]domain.BookResult, bool, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT results FROM search_cache_entries
		 WHERE cache_key = $1 AND provider = $2`,
		key, provider,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var results []domain.BookResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return results, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, provider string, results []domain.BookResult, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO search_cache_entries (cache_key, provider, results, stored_at, expires_at)
		 VALUES ($1, $2, $3, now(), now() + $4)
		 ON CONFLICT (cache_key, provider) DO UPDATE
		 SET results = EXCLUDED.results, stored_at = now(), expires_at = EXCLUDED.expires_at`,
		key, provider, data, ttl)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, key, provider string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM search_cache_entries WHERE cache_key = $1 AND provider = $2`, key, provider)
	return err
}

func (p *PostgresStore) CleanExpired(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM search_cache_entries WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

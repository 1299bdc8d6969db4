package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// cacheQueryTimeout is the deadline for each cache read/write query.
const cacheQueryTimeout = 5 * time.Second

// pgCacheStore is the PostgreSQL implementation of CacheStore.
type pgCacheStore struct {
	pool *pgxpool.Pool
}

// NewPgCacheStore creates a CacheStore backed by the route_cache table.
func NewPgCacheStore(pool *pgxpool.Pool) CacheStore {
	return &pgCacheStore{pool: pool}
}

// Get queries route_cache for a valid (non-expired) entry.
func (s *pgCacheStore) Get(ctx context.Context, key string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	const q = `
		SELECT body, status_code, content_type
		FROM route_cache
		WHERE cache_key  = $1
		  AND expires_at > NOW()`

	var (
		body        []byte
		statusCode  int32
		contentType string
	)

	err := s.pool.QueryRow(ctx, q, key).Scan(&body, &statusCode, &contentType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("routing: cache: get: %w", err)
	}

	return &Document{Body: body, StatusCode: int(statusCode), ContentType: contentType}, nil
}

// Set upserts an entry into route_cache.
// The expiry time is computed in Go so that the TTL never lives in SQL.
func (s *pgCacheStore) Set(ctx context.Context, key string, doc *Document, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	expiresAt := time.Now().Add(ttl)

	const q = `
		INSERT INTO route_cache
			(cache_key, body, status_code, content_type, created_at, expires_at)
		VALUES
			($1, $2, $3, $4, NOW(), $5)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			body         = EXCLUDED.body,
			status_code  = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			created_at   = EXCLUDED.created_at,
			expires_at   = EXCLUDED.expires_at`

	_, err := s.pool.Exec(ctx, q,
		key,
		doc.Body,
		int32(doc.StatusCode),
		doc.ContentType,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("routing: cache: set: %w", err)
	}
	return nil
}

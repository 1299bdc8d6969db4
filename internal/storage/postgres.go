// Package storage owns the PostgreSQL connection pool used by the route cache.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// queryTimeout is applied to maintenance queries.
	queryTimeout = 5 * time.Second

	connectTimeout  = 10 * time.Second
	maxConns        = 20
	maxConnLifetime = 30 * time.Minute
	maxConnIdleTime = 5 * time.Minute
)

// DBError represents a database-related error.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("db error during %q: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// Connect parses dsn, opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &DBError{Op: "parse_dsn", Err: err}
	}

	poolCfg.MaxConns = maxConns
	poolCfg.MaxConnLifetime = maxConnLifetime
	poolCfg.MaxConnIdleTime = maxConnIdleTime

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &DBError{Op: "connect", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &DBError{Op: "ping", Err: err}
	}

	return pool, nil
}

// PurgeExpiredRoutes deletes expired route_cache rows and returns how many
// were removed.
func PurgeExpiredRoutes(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := pool.Exec(ctx, `DELETE FROM route_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, &DBError{Op: "purge_route_cache", Err: err}
	}
	return tag.RowsAffected(), nil
}

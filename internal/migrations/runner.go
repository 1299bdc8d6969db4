// Package migrations applies the embedded SQL schema for the postgres route
// cache.
//
// Migrations are tracked in the schema_migrations table, so Run is
// idempotent. Files run in lexicographic order (NNN_description.sql);
// 000_migrations_table.sql must stay first.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed *.sql
var sqlFiles embed.FS

// requiredTables are checked by CheckSchema after migrations ran.
var requiredTables = []string{"route_cache"}

type entry struct {
	version string // filename used as the unique version key
	sql     string
}

// Run applies all pending migrations to the database in lexicographic order.
// Each pending migration runs in its own transaction together with the
// insert that records its version.
func Run(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) error {
	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return fmt.Errorf("migrations: ensure tracking table: %w", err)
	}

	entries, err := loadEntries()
	if err != nil {
		return fmt.Errorf("migrations: load files: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return fmt.Errorf("migrations: read applied versions: %w", err)
	}

	pending := 0
	for _, e := range entries {
		if applied[e.version] {
			log.WithField("version", e.version).Debug("migrations: already applied")
			continue
		}
		if err := applyEntry(ctx, pool, e); err != nil {
			return fmt.Errorf("migrations: apply %q: %w", e.version, err)
		}
		log.WithField("version", e.version).Info("migrations: applied")
		pending++
	}

	if pending == 0 {
		log.Info("migrations: schema is up to date")
	} else {
		log.WithField("count", pending).Info("migrations: done")
	}

	return nil
}

// CheckSchema verifies that the expected tables exist in the public schema.
func CheckSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range requiredTables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
                SELECT 1
                FROM information_schema.tables
                WHERE table_schema = 'public'
                  AND table_name   = $1
            )`,
			table,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("migrations: check table %q: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("migrations: required table %q is missing", table)
		}
	}

	return nil
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version    VARCHAR(255) PRIMARY KEY,
            applied_at TIMESTAMP DEFAULT NOW()
        )`)
	return err
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		seen[v] = true
	}

	return seen, rows.Err()
}

// loadEntries reads the embedded SQL files. embed.FS.ReadDir returns them
// sorted by filename.
func loadEntries() ([]entry, error) {
	dirEntries, err := sqlFiles.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read embedded dir: %w", err)
	}

	var out []entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		content, err := sqlFiles.ReadFile(de.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", de.Name(), err)
		}
		out = append(out, entry{version: de.Name(), sql: string(content)})
	}

	return out, nil
}

func applyEntry(ctx context.Context, pool *pgxpool.Pool, e entry) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, e.sql); err != nil {
		return fmt.Errorf("exec sql: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1)`,
		e.version,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit(ctx)
}

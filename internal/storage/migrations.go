package storage

import (
	"context"

	"github.com/FooledKiwi/route-proxy/internal/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// RunMigrations applies all pending SQL migrations and verifies the schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) error {
	if err := migrations.Run(ctx, pool, log); err != nil {
		return err
	}

	return migrations.CheckSchema(ctx, pool)
}

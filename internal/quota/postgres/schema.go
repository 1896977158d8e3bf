// Package postgres provides a PostgreSQL-backed [quota.Store].
//
// Balances live in a single table keyed by account. [Migrate] creates it on
// first use; accounts are inserted with the configured default balance the
// first time they are read.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 30)
//	if err != nil { … }
//	left, _ := store.Decrement(ctx, "alice", 1)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlQuota = `
CREATE TABLE IF NOT EXISTS parley_quota (
    account           TEXT        PRIMARY KEY,
    minutes_remaining INTEGER     NOT NULL CHECK (minutes_remaining >= 0),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Migrate creates the quota table if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlQuota} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

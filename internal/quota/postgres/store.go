package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/internal/quota"
)

var (
	_ quota.Store  = (*Store)(nil)
	_ quota.Pinger = (*Store)(nil)
)

// Store is a [quota.Store] backed by a [pgxpool.Pool]. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	def  int
}

// NewStore connects to dsn, pings the server and runs [Migrate]. Accounts seen
// for the first time start with defaultMinutes.
func NewStore(ctx context.Context, dsn string, defaultMinutes int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres quota: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres quota: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres quota: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres quota: migrate: %w", err)
	}
	return &Store{pool: pool, def: max(defaultMinutes, 0)}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping implements [quota.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres quota: ping: %w", err)
	}
	return nil
}

// Remaining implements [quota.Store]. Unknown accounts are created with the
// default balance.
func (s *Store) Remaining(ctx context.Context, account string) (int, error) {
	if account == "" {
		return 0, fmt.Errorf("postgres quota: remaining: %w", quota.ErrUnknownAccount)
	}
	const ensure = `
		INSERT INTO parley_quota (account, minutes_remaining)
		VALUES ($1, $2)
		ON CONFLICT (account) DO NOTHING`
	if _, err := s.pool.Exec(ctx, ensure, account, s.def); err != nil {
		return 0, fmt.Errorf("postgres quota: ensure account: %w", err)
	}

	var left int
	err := s.pool.QueryRow(ctx,
		`SELECT minutes_remaining FROM parley_quota WHERE account = $1`, account,
	).Scan(&left)
	if err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("postgres quota: remaining: %w", quota.ErrUnknownAccount)
		}
		return 0, fmt.Errorf("postgres quota: remaining: %w", err)
	}
	return left, nil
}

// Decrement implements [quota.Store]. The balance is clamped at zero in a
// single UPDATE so concurrent sessions cannot overdraw it.
func (s *Store) Decrement(ctx context.Context, account string, minutes int) (int, error) {
	if account == "" {
		return 0, fmt.Errorf("postgres quota: decrement: %w", quota.ErrUnknownAccount)
	}
	if minutes < 0 {
		return 0, fmt.Errorf("postgres quota: decrement: negative minutes %d", minutes)
	}
	const q = `
		UPDATE parley_quota
		SET minutes_remaining = GREATEST(minutes_remaining - $2, 0),
		    updated_at        = now()
		WHERE account = $1
		RETURNING minutes_remaining`

	var left int
	if err := s.pool.QueryRow(ctx, q, account, minutes).Scan(&left); err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("postgres quota: decrement %q: %w", account, quota.ErrUnknownAccount)
		}
		return 0, fmt.Errorf("postgres quota: decrement: %w", err)
	}
	return left, nil
}

// Set overwrites the balance of account, creating it if needed.
func (s *Store) Set(ctx context.Context, account string, minutes int) error {
	if account == "" {
		return fmt.Errorf("postgres quota: set: %w", quota.ErrUnknownAccount)
	}
	const q = `
		INSERT INTO parley_quota (account, minutes_remaining)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE
		SET minutes_remaining = EXCLUDED.minutes_remaining,
		    updated_at        = now()`
	if _, err := s.pool.Exec(ctx, q, account, max(minutes, 0)); err != nil {
		return fmt.Errorf("postgres quota: set: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectPostgres opens a pool and verifies it with a ping. Caller should call pool.Close().
func ConnectPostgres(ctx context.Context, url string, maxConns int32, timeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Execer is satisfied by *pgxpool.Pool and pgxmock pools.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// schema is applied idempotently on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id         text PRIMARY KEY,
		email      text NOT NULL DEFAULT '',
		role       text NOT NULL CHECK (role IN ('admin', 'waiter', 'kitchen')),
		username   text NOT NULL DEFAULT '',
		full_name  text NOT NULL DEFAULT '',
		avatar_url text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cashier_sessions (
		id               text PRIMARY KEY,
		opened_at        timestamptz NOT NULL,
		opened_by        text NOT NULL,
		initial_balance  bigint NOT NULL CHECK (initial_balance >= 0),
		status           text NOT NULL CHECK (status IN ('open', 'closed')),
		closed_at        timestamptz,
		closed_by        text,
		final_balance    bigint,
		total_sales      bigint,
		total_expenses   bigint,
		expected_balance bigint,
		notes            text
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS cashier_sessions_one_open ON cashier_sessions (status) WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id         text PRIMARY KEY,
		shift_id   text REFERENCES cashier_sessions (id),
		type       text NOT NULL CHECK (type IN ('sale', 'expense')),
		amount     bigint NOT NULL CHECK (amount > 0),
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_shift_id ON transactions (shift_id)`,
	`CREATE TABLE IF NOT EXISTS telemetry_events (
		id         bigserial PRIMARY KEY,
		event_type text NOT NULL,
		severity   text NOT NULL,
		context    jsonb NOT NULL DEFAULT '{}',
		user_id    text,
		created_at timestamptz NOT NULL
	)`,
}

// Migrate creates the tables the terminal uses when they do not exist.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

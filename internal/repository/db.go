package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the payment schema. The auth database is owned by the
// auth service and is never migrated from here.
func RunMigrations(ctx context.Context, db DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS subscription_plans (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       BIGINT NOT NULL CHECK (price > 0),
			duration    INT NOT NULL CHECK (duration > 0),
			features    JSONB NOT NULL DEFAULT '[]',
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS orders (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			plan_id          TEXT NOT NULL REFERENCES subscription_plans(id),
			amount           BIGINT NOT NULL CHECK (amount > 0 AND amount <= 100000000),
			status           TEXT NOT NULL DEFAULT 'pending'
			                 CHECK (status IN ('pending', 'completed', 'failed', 'cancelled', 'expired')),
			transaction_no   TEXT,
			transaction_info JSONB,
			admin_note       TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS payment_logs (
			id         BIGSERIAL PRIMARY KEY,
			order_id   TEXT NOT NULL REFERENCES orders(id),
			event_type TEXT NOT NULL,
			data       JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_logs_order_id ON payment_logs(order_id, created_at);
		CREATE OR REPLACE RULE payment_logs_no_update AS ON UPDATE TO payment_logs DO INSTEAD NOTHING;
		CREATE OR REPLACE RULE payment_logs_no_delete AS ON DELETE TO payment_logs DO INSTEAD NOTHING;
	`
	_, err := db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

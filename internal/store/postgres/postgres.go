package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotReady = errors.New("postgres did not become ready")

type DB struct {
	Pool *pgxpool.Pool
}

type Options struct {
	MaxConns      int32
	RetryAttempts int
	RetryInterval time.Duration
}

// New opens a pool and pings it, retrying with a linearly growing delay so
// workers started next to the database survive its boot.
func New(ctx context.Context, connString string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	attempts := max(opts.RetryAttempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &DB{Pool: pool}, nil
			}
			pool.Close()
		}
		lastErr = err
		slog.Warn("postgres not ready",
			slog.String("code", "DB_ERROR"),
			slog.Int("attempt", i+1),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(time.Duration(i+1) * opts.RetryInterval):
		}
	}

	return nil, errors.Join(ErrNotReady, lastErr)
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Healthcheck returns a closure suitable for liveness checks.
func (db *DB) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres healthcheck: %w", err)
		}
		return nil
	}
}

func (db *DB) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS notification_templates (
			name       TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS notifications (
			id            TEXT PRIMARY KEY,
			channel       TEXT NOT NULL CHECK (channel IN ('EMAIL', 'SMS', 'PUSH')),
			template_name TEXT NOT NULL,
			parameters    JSONB NOT NULL DEFAULT '{}'::jsonb,
			status        TEXT NOT NULL CHECK (status IN ('PENDING', 'SUCCESS', 'FAILED')),
			attempts      INT NOT NULL DEFAULT 0 CHECK (attempts >= 0),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS notification_stats (
			channel     TEXT NOT NULL,
			status      TEXT NOT NULL,
			hour_bucket TIMESTAMPTZ NOT NULL,
			count       BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (channel, status, hour_bucket)
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_status_updated_at ON notifications(status, updated_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
	`

	_, err := db.Pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const createUsersTableSQL = `CREATE TABLE IF NOT EXISTS users (
	id                   BIGINT PRIMARY KEY,
	provider_id          TEXT NOT NULL,
	email                TEXT NOT NULL DEFAULT '',
	name                 TEXT NOT NULL DEFAULT '',
	avatar_url           TEXT NOT NULL DEFAULT '',
	access_token_cipher  TEXT,
	refresh_token_cipher TEXT,
	token_expiry         TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createProviderIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS users_provider_id_key ON users (provider_id)`

// EnsureSchema creates the users table on startup if it does not exist.
// Statements are idempotent so repeated starts are safe.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, pool, logger)
		},
	})
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if _, err := pool.Exec(ctx, createUsersTableSQL); err != nil {
		return fmt.Errorf("bootstrap create users table: %w", err)
	}
	if _, err := pool.Exec(ctx, createProviderIndexSQL); err != nil {
		return fmt.Errorf("bootstrap create provider index: %w", err)
	}
	if logger != nil {
		logger.Info("schema bootstrap complete")
	}
	return nil
}

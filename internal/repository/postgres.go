package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makaronz/stillontime-auth/internal/domain"
	"github.com/makaronz/stillontime-auth/internal/domain/oauth"
)

var _ UserRepository = (*PostgresUserRepo)(nil)

// PostgresUserRepo implements UserRepository on pgx.
type PostgresUserRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresUserRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool, node: node}
}

const userColumns = `id, provider_id, email, name, avatar_url, access_token_cipher, refresh_token_cipher, token_expiry, created_at, updated_at`

const getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, getUserByIDSQL, userID), "get user")
}

const getUserByProviderIDSQL = `SELECT ` + userColumns + ` FROM users WHERE provider_id = $1`

func (r *PostgresUserRepo) GetByProviderID(ctx context.Context, providerID string) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, getUserByProviderIDSQL, providerID), "get user by provider id")
}

const upsertUserSQL = `INSERT INTO users (id, provider_id, email, name, avatar_url, access_token_cipher, refresh_token_cipher, token_expiry)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (provider_id) DO UPDATE SET
	email = EXCLUDED.email,
	name = EXCLUDED.name,
	avatar_url = EXCLUDED.avatar_url,
	access_token_cipher = EXCLUDED.access_token_cipher,
	refresh_token_cipher = EXCLUDED.refresh_token_cipher,
	token_expiry = EXCLUDED.token_expiry,
	updated_at = now()
RETURNING ` + userColumns

func (r *PostgresUserRepo) UpsertByProviderID(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, upsertUserSQL,
		r.node.Generate().Int64(),
		user.ProviderID,
		user.Email,
		user.Name,
		user.AvatarURL,
		nullString(user.AccessTokenCipher),
		nullString(user.RefreshTokenCipher),
		nullTime(user.TokenExpiry),
	)
	return r.scanUser(row, "upsert user")
}

const updateCredentialsSQL = `UPDATE users
SET access_token_cipher = $2, refresh_token_cipher = $3, token_expiry = $4, updated_at = now()
WHERE id = $1`

func (r *PostgresUserRepo) UpdateCredentials(ctx context.Context, userID int64, update oauth.CredentialUpdate) error {
	tag, err := r.db.Exec(ctx, updateCredentialsSQL,
		userID,
		nullString(update.AccessTokenCipher),
		nullString(update.RefreshTokenCipher),
		nullTime(update.TokenExpiry),
	)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update credentials: %w", pgx.ErrNoRows)
	}
	return nil
}

const clearCredentialsSQL = `UPDATE users
SET access_token_cipher = NULL, refresh_token_cipher = NULL, token_expiry = NULL, updated_at = now()
WHERE id = $1`

func (r *PostgresUserRepo) ClearCredentials(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, clearCredentialsSQL, userID)
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("clear credentials: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresUserRepo) scanUser(row pgx.Row, op string) (domain.User, error) {
	var (
		user          domain.User
		accessCipher  sql.NullString
		refreshCipher sql.NullString
		expiry        sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.ProviderID,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&accessCipher,
		&refreshCipher,
		&expiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}
	user.AccessTokenCipher = accessCipher.String
	user.RefreshTokenCipher = refreshCipher.String
	if expiry.Valid {
		t := expiry.Time.UTC()
		user.TokenExpiry = &t
	}
	return user, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

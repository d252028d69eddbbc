package repository

import (
	"context"
	"time"

	"github.com/makaronz/stillontime-auth/internal/domain"
	"github.com/makaronz/stillontime-auth/internal/domain/oauth"
)

// UserRepository is the credential store boundary: user records with their
// encrypted provider credentials, keyed by opaque user id.
type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByProviderID(ctx context.Context, providerID string) (domain.User, error)
	// UpsertByProviderID creates the user on first login and updates profile
	// plus credentials on every subsequent one, keyed by provider subject.
	UpsertByProviderID(ctx context.Context, user domain.User) (domain.User, error)
	UpdateCredentials(ctx context.Context, userID int64, update oauth.CredentialUpdate) error
	// ClearCredentials nulls all three credential fields. The row persists.
	ClearCredentials(ctx context.Context, userID int64) error
}

// StateStore persists short-lived CSRF state across the authorization redirect.
type StateStore interface {
	SaveState(ctx context.Context, key string, data oauth.AuthState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*oauth.AuthState, error)
	DeleteState(ctx context.Context, key string) error
}

package domain

import "time"

// User represents an end user authenticated through the external provider.
// Provider tokens are stored as ciphertext only; empty means absent.
type User struct {
	ID         int64
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string

	AccessTokenCipher  string
	RefreshTokenCipher string
	TokenExpiry        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAccessToken reports whether an encrypted access token is stored.
func (u User) HasAccessToken() bool {
	return u.AccessTokenCipher != ""
}

// HasRefreshToken reports whether an encrypted refresh token is stored.
func (u User) HasRefreshToken() bool {
	return u.RefreshTokenCipher != ""
}

// TokenExpired reports whether the stored access token is stale at the given
// instant, with the supplied lead margin. A missing expiry is treated as
// expired.
func (u User) TokenExpired(now time.Time, margin time.Duration) bool {
	if u.TokenExpiry == nil {
		return true
	}
	return !u.TokenExpiry.After(now.Add(margin))
}

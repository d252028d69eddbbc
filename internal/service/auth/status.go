package auth

import (
	"context"

	domainoauth "github.com/makaronz/stillontime-auth/internal/domain/oauth"
)

// GetStatus derives the user-facing authentication status from the stored
// record and the current time. It never calls the provider and never mutates.
func (s *Service) GetStatus(ctx context.Context, userID int64) (*domainoauth.Status, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	needsReauth := user.TokenExpired(s.now(), 0) && !user.HasRefreshToken()
	return &domainoauth.Status{
		Authenticated: !needsReauth && user.HasAccessToken(),
		ExpiresAt:     user.TokenExpiry,
		NeedsReauth:   needsReauth,
	}, nil
}

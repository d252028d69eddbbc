package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domainoauth "github.com/makaronz/stillontime-auth/internal/domain/oauth"
)

// GetValidAccessToken returns a plaintext access token that is valid for at
// least the configured safety margin, refreshing through the provider when
// needed. Concurrent callers for the same user id share a single refresh:
// exactly one provider call is made and every waiter receives its result,
// after the refreshed credentials have been persisted.
//
// Deduplication is process-local. Separate processes refresh independently;
// that relaxation is accepted.
func (s *Service) GetValidAccessToken(ctx context.Context, userID int64) (string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}

	margin := s.cfg.RefreshSafetyMargin
	if !user.TokenExpired(s.now(), margin) && user.HasAccessToken() {
		return s.cipher.Decrypt(user.AccessTokenCipher)
	}

	if !user.HasRefreshToken() {
		return "", domainoauth.ErrReauthRequired
	}

	// The refresh runs detached from any single caller's context: one
	// caller timing out must not cancel the shared flight. The provider
	// call inside is bounded by its own timeout, which also guarantees the
	// flight slot is eventually released.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return s.refreshCredentials(flightCtx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refreshCredentials performs one provider refresh for the user and persists
// the result before returning. On provider failure the stored record is left
// untouched so the next attempt can retry.
func (s *Service) refreshCredentials(ctx context.Context, userID int64) (string, error) {
	// Re-read inside the flight: a waiter queued behind a completed refresh
	// must not trigger a second provider call.
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}

	if !user.TokenExpired(s.now(), s.cfg.RefreshSafetyMargin) && user.HasAccessToken() {
		return s.cipher.Decrypt(user.AccessTokenCipher)
	}
	if !user.HasRefreshToken() {
		return "", domainoauth.ErrReauthRequired
	}

	refreshToken, err := s.cipher.Decrypt(user.RefreshTokenCipher)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	resp, err := s.provider.Refresh(callCtx, refreshToken)
	if err != nil {
		s.log().Warn("provider refresh failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", domainoauth.ErrRefreshFailed, err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", fmt.Errorf("%w: provider returned no access token", domainoauth.ErrRefreshFailed)
	}

	accessCipher, err := s.cipher.Encrypt(resp.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}

	// The provider may omit a refresh token on refresh; keep the previous
	// one in that case, never null it out on absence alone.
	refreshCipher := user.RefreshTokenCipher
	if resp.RefreshToken != "" {
		refreshCipher, err = s.cipher.Encrypt(resp.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	update := domainoauth.CredentialUpdate{
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiry:        s.absoluteExpiry(resp.ExpiresIn),
	}

	// Persist before releasing any waiter, so nobody re-reads stale state.
	// If the write fails the provider holds a token the store does not know
	// about; surface it as a retryable failure and leave recovery to the
	// still-valid stored refresh token.
	if err := s.users.UpdateCredentials(ctx, userID, update); err != nil {
		s.log().Error("refreshed credentials could not be persisted",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: persist: %v", domainoauth.ErrRefreshFailed, err)
	}

	var expiry time.Time
	if update.TokenExpiry != nil {
		expiry = *update.TokenExpiry
	}
	s.log().Info("provider token refreshed",
		zap.Int64("user_id", userID),
		zap.Time("token_expiry", expiry),
	)

	return resp.AccessToken, nil
}

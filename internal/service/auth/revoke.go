package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Revoke invalidates the user's provider tokens best-effort, then
// unconditionally clears the stored credential record. Local logout succeeds
// even when the remote revoke call fails.
func (s *Service) Revoke(ctx context.Context, userID int64) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, cipherText := range []string{user.RefreshTokenCipher, user.AccessTokenCipher} {
		if cipherText == "" {
			continue
		}
		token, err := s.cipher.Decrypt(cipherText)
		if err != nil {
			s.log().Warn("stored token could not be decrypted for revocation",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
		if err := s.provider.Revoke(callCtx, token); err != nil {
			s.log().Warn("provider revoke failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
		cancel()
	}

	if err := s.users.ClearCredentials(ctx, userID); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	s.log().Info("provider credentials revoked", zap.Int64("user_id", userID))
	return nil
}

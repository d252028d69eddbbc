package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainoauth "github.com/makaronz/stillontime-auth/internal/domain/oauth"
	"github.com/makaronz/stillontime-auth/internal/secret"
)

func TestGetValidAccessTokenFreshSkipsProvider(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	user := h.seedUser(t, "prov-1", "at-fresh", "rt-123", &future)

	token, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "at-fresh", token)
	require.Zero(t, h.provider.refreshCalls.Load())
}

func TestGetValidAccessTokenRefreshesStaleToken(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}

	token, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "at-456", token)
	require.Equal(t, int64(1), h.provider.refreshCalls.Load())

	stored := h.users.snapshot(user.ID)
	access, err := h.cipher.Decrypt(stored.AccessTokenCipher)
	require.NoError(t, err)
	require.Equal(t, "at-456", access)
	require.NotNil(t, stored.TokenExpiry)
	require.WithinDuration(t, time.Now().Add(time.Hour), *stored.TokenExpiry, 5*time.Second)
}

func TestGetValidAccessTokenRefreshWithinSafetyMargin(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	// Not yet expired, but inside the 5 minute margin.
	soon := time.Now().Add(2 * time.Minute)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &soon)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}

	token, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "at-456", token)
	require.Equal(t, int64(1), h.provider.refreshCalls.Load())
}

func TestGetValidAccessTokenKeepsRefreshTokenWhenOmitted(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}

	_, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.NoError(t, err)

	stored := h.users.snapshot(user.ID)
	refresh, err := h.cipher.Decrypt(stored.RefreshTokenCipher)
	require.NoError(t, err)
	require.Equal(t, "rt-123", refresh)
}

func TestGetValidAccessTokenRotatesRefreshTokenWhenProvided(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", RefreshToken: "rt-rotated", ExpiresIn: 3600}

	_, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.NoError(t, err)

	stored := h.users.snapshot(user.ID)
	refresh, err := h.cipher.Decrypt(stored.RefreshTokenCipher)
	require.NoError(t, err)
	require.Equal(t, "rt-rotated", refresh)
}

func TestGetValidAccessTokenFailedRefreshLeavesRecordUntouched(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)
	before := h.users.snapshot(user.ID)

	h.provider.refreshErr = fmt.Errorf("token endpoint failed: status=400")

	_, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.True(t, errors.Is(err, domainoauth.ErrRefreshFailed))

	after := h.users.snapshot(user.ID)
	require.Equal(t, before.AccessTokenCipher, after.AccessTokenCipher)
	require.Equal(t, before.RefreshTokenCipher, after.RefreshTokenCipher)
	require.Equal(t, before.TokenExpiry, after.TokenExpiry)
}

func TestGetValidAccessTokenFailedPersistSurfacesRefreshFailed(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}
	h.users.updateErr = fmt.Errorf("connection reset")

	_, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.True(t, errors.Is(err, domainoauth.ErrRefreshFailed))
}

func TestGetValidAccessTokenWithoutRefreshToken(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "", &expired)

	_, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.True(t, errors.Is(err, domainoauth.ErrReauthRequired))
	require.Zero(t, h.provider.refreshCalls.Load())
}

func TestGetValidAccessTokenMissingExpiryTreatedAsExpired(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", nil)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}

	token, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "at-456", token)
	require.Equal(t, int64(1), h.provider.refreshCalls.Load())
}

func TestGetValidAccessTokenUnknownUser(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.service.GetValidAccessToken(context.Background(), 404)
	require.True(t, errors.Is(err, domainoauth.ErrUserNotFound))
}

func TestGetValidAccessTokenCorruptCiphertextFailsRequestOnly(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	user := h.seedUser(t, "prov-1", "at-fresh", "rt-123", &future)

	require.NoError(t, h.users.UpdateCredentials(ctx, user.ID, domainoauth.CredentialUpdate{
		AccessTokenCipher:  "not.valid.ciphertext",
		RefreshTokenCipher: h.users.snapshot(user.ID).RefreshTokenCipher,
		TokenExpiry:        &future,
	}))

	_, err := h.service.GetValidAccessToken(ctx, user.ID)
	require.True(t, errors.Is(err, secret.ErrDecryption))
}

func TestGetValidAccessTokenSingleFlight(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}
	h.provider.refreshDelay = 30 * time.Millisecond

	const callers = 25
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = h.service.GetValidAccessToken(ctx, user.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "at-456", tokens[i])
	}
	require.Equal(t, int64(1), h.provider.refreshCalls.Load(),
		"concurrent callers must share one provider refresh")

	stored := h.users.snapshot(user.ID)
	access, err := h.cipher.Decrypt(stored.AccessTokenCipher)
	require.NoError(t, err)
	require.Equal(t, "at-456", access)
}

func TestGetValidAccessTokenSingleFlightPerUser(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour)
	first := h.seedUser(t, "prov-1", "at-old", "rt-1", &expired)
	second := h.seedUser(t, "prov-2", "at-old", "rt-2", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}
	h.provider.refreshDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for _, id := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := h.service.GetValidAccessToken(ctx, id)
			require.NoError(t, err)
		}(id)
	}
	wg.Wait()

	// Different user ids never share a flight.
	require.Equal(t, int64(2), h.provider.refreshCalls.Load())
}

func TestGetValidAccessTokenWaiterTimeoutReleasesOnlyItself(t *testing.T) {
	h := newTestHarness(t)
	expired := time.Now().Add(-time.Hour)
	user := h.seedUser(t, "prov-1", "at-old", "rt-123", &expired)

	h.provider.refresh = &domainoauth.TokenResponse{AccessToken: "at-456", ExpiresIn: 3600}
	h.provider.refreshDelay = 50 * time.Millisecond

	impatient, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var patientToken string
	var patientErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		patientToken, patientErr = h.service.GetValidAccessToken(context.Background(), user.ID)
	}()

	_, err := h.service.GetValidAccessToken(impatient, user.ID)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	wg.Wait()
	require.NoError(t, patientErr)
	require.Equal(t, "at-456", patientToken)
	require.Equal(t, int64(1), h.provider.refreshCalls.Load(),
		"an abandoned waiter must not cancel or duplicate the shared refresh")
}

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateEncryptionSalt(t *testing.T) {
	require.NoError(t, ValidateEncryptionSalt("k8Qz2vXw0tRb5nPm7sLd4cJf9hGy1aEu"))

	require.Error(t, ValidateEncryptionSalt("too-short"))
	require.Error(t, ValidateEncryptionSalt(""))
	require.Error(t, ValidateEncryptionSalt(strings.Repeat("a", 48)))
	require.Error(t, ValidateEncryptionSalt("changemechangemechangemechangeme"))
	require.Error(t, ValidateEncryptionSalt("CHANGEMECHANGEMECHANGEMECHANGEME"))
	require.Error(t, ValidateEncryptionSalt("0123456789abcdef0123456789abcdef"))
}

func TestLoadRequiresProviderCredentials(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("PROVIDER_CLIENT_ID", "")
	t.Setenv("PROVIDER_CLIENT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PROVIDER_CLIENT_ID")
}

func TestLoadRejectsSharedSecrets(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SESSION_SIGNING_SECRET", "k8Qz2vXw0tRb5nPm7sLd4cJf9hGy1aEu")
	t.Setenv("TOKEN_ENCRYPTION_SECRET", "k8Qz2vXw0tRb5nPm7sLd4cJf9hGy1aEu")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "must differ")
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, []string{"openid", "email", "profile"}, cfg.ProviderScopes)
	require.Equal(t, "5m0s", cfg.RefreshSafetyMargin.String())
	require.Equal(t, "1h0m0s", cfg.SessionTTL.String())
}

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("PROVIDER_CLIENT_ID", "client")
	t.Setenv("PROVIDER_CLIENT_SECRET", "secret")
	t.Setenv("PROVIDER_REDIRECT_URI", "https://app.example.com/auth/oauth/callback")
	t.Setenv("PROVIDER_AUTH_URL", "https://idp.example.com/o/authorize")
	t.Setenv("PROVIDER_TOKEN_URL", "https://idp.example.com/o/token")
	t.Setenv("PROVIDER_USERINFO_URL", "https://idp.example.com/o/userinfo")
	t.Setenv("TOKEN_ENCRYPTION_SECRET", "uV3pXz8qLw2dRt6yBn4mKs9hGc1fJe5a")
	t.Setenv("TOKEN_ENCRYPTION_SALT", "k8Qz2vXw0tRb5nPm7sLd4cJf9hGy1aEu")
	t.Setenv("SESSION_SIGNING_SECRET", "Wd7cNf2kQx5vZr9tLp4mGs8hJb1yEa6u")
}

package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPProviderClientExchangeCode(t *testing.T) {
	var gotGrant, gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotGrant = r.PostFormValue("grant_type")
		gotCode = r.PostFormValue("code")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-456","refresh_token":"rt-123","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(Endpoints{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}, srv.Client())
	resp, err := client.ExchangeCode(context.Background(), "auth-code", "https://app/callback")
	require.NoError(t, err)
	require.Equal(t, "authorization_code", gotGrant)
	require.Equal(t, "auth-code", gotCode)
	require.Equal(t, "at-456", resp.AccessToken)
	require.Equal(t, "rt-123", resp.RefreshToken)
	require.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestHTTPProviderClientRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		require.Equal(t, "rt-123", r.PostFormValue("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-789","expires_in":"3600"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(Endpoints{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}, srv.Client())
	resp, err := client.Refresh(context.Background(), "rt-123")
	require.NoError(t, err)
	require.Equal(t, "at-789", resp.AccessToken)
	require.Empty(t, resp.RefreshToken)
	require.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestHTTPProviderClientErrorHidesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"super secret detail"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(Endpoints{TokenURL: srv.URL}, srv.Client())
	_, err := client.ExchangeCode(context.Background(), "bad", "https://app/callback")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "super secret detail")
	require.Contains(t, err.Error(), "status=400")
}

func TestHTTPProviderClientFetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-456", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"prov-1","email":"user@example.com","name":"User"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(Endpoints{UserInfoURL: srv.URL}, srv.Client())
	identity, err := client.FetchUserInfo(context.Background(), "at-456")
	require.NoError(t, err)
	require.Equal(t, "prov-1", identity.Subject)
	require.Equal(t, "user@example.com", identity.Email)
}

func TestHTTPProviderClientRevokeSwallowsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(Endpoints{RevokeURL: srv.URL}, srv.Client())
	require.NoError(t, client.Revoke(context.Background(), "already-revoked"))
}

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/makaronz/stillontime-auth/internal/config"
	domainoauth "github.com/makaronz/stillontime-auth/internal/domain/oauth"
)

// ProviderClient encapsulates outbound HTTP calls to the external IdP.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*domainoauth.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*domainoauth.TokenResponse, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*domainoauth.Identity, error)
	Revoke(ctx context.Context, token string) error
}

// Endpoints holds the provider URLs and client credentials.
type Endpoints struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserInfoURL  string
	RevokeURL    string
}

// EndpointsFromConfig maps runtime configuration to provider endpoints.
func EndpointsFromConfig(cfg config.Config) Endpoints {
	return Endpoints{
		ClientID:     cfg.ProviderClientID,
		ClientSecret: cfg.ProviderClientSecret,
		TokenURL:     cfg.ProviderTokenURL,
		UserInfoURL:  cfg.ProviderUserInfoURL,
		RevokeURL:    cfg.ProviderRevokeURL,
	}
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	endpoints  Endpoints
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(endpoints Endpoints, client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{endpoints: endpoints, httpClient: client}
}

// ExchangeCode performs the authorization-code token exchange.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*domainoauth.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", c.endpoints.ClientID)
	data.Set("client_secret", c.endpoints.ClientSecret)
	return c.postTokenForm(ctx, data)
}

// Refresh exchanges a refresh token for a new access token.
func (c *HTTPProviderClient) Refresh(ctx context.Context, refreshToken string) (*domainoauth.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.endpoints.ClientID)
	data.Set("client_secret", c.endpoints.ClientSecret)
	return c.postTokenForm(ctx, data)
}

func (c *HTTPProviderClient) postTokenForm(ctx context.Context, data url.Values) (*domainoauth.TokenResponse, error) {
	if strings.TrimSpace(c.endpoints.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		// Provider error bodies stay out of the returned error.
		return nil, fmt.Errorf("token endpoint failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := &domainoauth.TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		IDToken:      stringValue(raw["id_token"]),
		Scope:        stringValue(raw["scope"]),
		Raw:          raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	return token, nil
}

// FetchUserInfo loads the userinfo endpoint profile.
func (c *HTTPProviderClient) FetchUserInfo(ctx context.Context, accessToken string) (*domainoauth.Identity, error) {
	if strings.TrimSpace(c.endpoints.UserInfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	return &domainoauth.Identity{
		Subject: stringValue(coalesce(raw["sub"], raw["id"])),
		Email:   stringValue(coalesce(raw["email"], raw["mail"])),
		Name:    stringValue(coalesce(raw["name"], raw["displayName"])),
		Picture: stringValue(coalesce(raw["picture"], raw["avatar_url"])),
	}, nil
}

// Revoke invalidates a token at the provider. Providers treat revocation as
// idempotent; an already-revoked token is not an error here.
func (c *HTTPProviderClient) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(c.endpoints.RevokeURL) == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", c.endpoints.ClientID)
	data.Set("client_secret", c.endpoints.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("revoke failed: status=%d", resp.StatusCode)
	}
	return nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}

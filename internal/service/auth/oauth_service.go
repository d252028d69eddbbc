package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	oauthadapter "github.com/makaronz/stillontime-auth/internal/adapter/oauth"
	"github.com/makaronz/stillontime-auth/internal/config"
	"github.com/makaronz/stillontime-auth/internal/domain"
	domainoauth "github.com/makaronz/stillontime-auth/internal/domain/oauth"
	"github.com/makaronz/stillontime-auth/internal/repository"
	"github.com/makaronz/stillontime-auth/internal/secret"
	"github.com/makaronz/stillontime-auth/internal/sessions"
)

const (
	statePrefix = "oauth:state:"
	stateTTL    = 5 * time.Minute
	stateBytes  = 32
)

// StartAuthorizationOutput returns the prepared authorization URL and the
// CSRF state the caller round-trips through the provider redirect.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// Session represents the application session issued after a completed
// callback. The session token's validity is independent of the stored
// provider credentials.
type Session struct {
	UserID       int64
	Email        string
	Name         string
	Picture      string
	SessionToken string
	ExpiresIn    int64
}

// Service implements the provider credential core: authorization flow,
// single-flight token refresh, revocation, status and session issuance.
type Service struct {
	users    repository.UserRepository
	states   repository.StateStore
	provider oauthadapter.ProviderClient
	cipher   *secret.Cipher
	signer   *sessions.Signer
	cfg      config.Config
	logger   *zap.Logger

	// flight deduplicates in-flight refreshes per user id. Owned by the
	// service instance so its scope is explicit and testable.
	flight singleflight.Group
	now    func() time.Time
}

// NewService wires the auth service implementation.
func NewService(
	users repository.UserRepository,
	states repository.StateStore,
	provider oauthadapter.ProviderClient,
	cipher *secret.Cipher,
	signer *sessions.Signer,
	cfg config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:    users,
		states:   states,
		provider: provider,
		cipher:   cipher,
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// BuildAuthorizationURL builds the provider redirect URL bound to the given
// CSRF state, generating a fresh one when state is empty. Offline access and
// forced consent are always requested so the first login yields a refresh
// token.
func (s *Service) BuildAuthorizationURL(state string) (string, string, error) {
	if state == "" {
		generated, err := secureRandomString(stateBytes)
		if err != nil {
			return "", "", fmt.Errorf("generate state: %w", err)
		}
		state = generated
	}

	authURL, err := url.Parse(s.cfg.ProviderAuthURL)
	if err != nil {
		return "", "", fmt.Errorf("parse auth url: %w", err)
	}

	params := authURL.Query()
	params.Set("client_id", s.cfg.ProviderClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", s.cfg.ProviderRedirectURI)
	params.Set("scope", strings.Join(s.cfg.ProviderScopes, " "))
	params.Set("state", state)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	authURL.RawQuery = params.Encode()

	return authURL.String(), state, nil
}

// StartAuthorization builds the redirect URL and persists the state for the
// callback to validate. The state is single-use with a short TTL.
func (s *Service) StartAuthorization(ctx context.Context) (*StartAuthorizationOutput, error) {
	authURL, state, err := s.BuildAuthorizationURL("")
	if err != nil {
		return nil, err
	}

	payload := domainoauth.AuthState{
		State:       state,
		RedirectURI: s.cfg.ProviderRedirectURI,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.states.SaveState(ctx, buildStateKey(state), payload, stateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	return &StartAuthorizationOutput{AuthorizationURL: authURL, State: state}, nil
}

// ExchangeCode exchanges an authorization code for a provider token set.
func (s *Service) ExchangeCode(ctx context.Context, code string) (*domainoauth.TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	tokenResp, err := s.provider.ExchangeCode(callCtx, code, s.cfg.ProviderRedirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainoauth.ErrTokenExchange, err)
	}
	if strings.TrimSpace(tokenResp.AccessToken) == "" {
		return nil, fmt.Errorf("%w: provider returned no access token", domainoauth.ErrTokenExchange)
	}
	return tokenResp, nil
}

// FetchIdentity loads the provider profile for the access token. Subject and
// email are mandatory; name falls back to email when absent.
func (s *Service) FetchIdentity(ctx context.Context, accessToken string) (*domainoauth.Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	identity, err := s.provider.FetchUserInfo(callCtx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainoauth.ErrIncompleteIdentity, err)
	}
	if strings.TrimSpace(identity.Subject) == "" || strings.TrimSpace(identity.Email) == "" {
		return nil, fmt.Errorf("%w: provider omitted subject or email", domainoauth.ErrIncompleteIdentity)
	}
	if strings.TrimSpace(identity.Name) == "" {
		identity.Name = identity.Email
	}
	return identity, nil
}

// PersistCredentials encrypts the token set and upserts the user record keyed
// by provider subject.
func (s *Service) PersistCredentials(ctx context.Context, identity *domainoauth.Identity, tokens *domainoauth.TokenResponse) (domain.User, error) {
	accessCipher, err := s.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return domain.User{}, fmt.Errorf("encrypt access token: %w", err)
	}

	var refreshCipher string
	if tokens.RefreshToken != "" {
		refreshCipher, err = s.cipher.Encrypt(tokens.RefreshToken)
		if err != nil {
			return domain.User{}, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	user := domain.User{
		ProviderID:         identity.Subject,
		Email:              strings.ToLower(strings.TrimSpace(identity.Email)),
		Name:               identity.Name,
		AvatarURL:          identity.Picture,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiry:        s.absoluteExpiry(tokens.ExpiresIn),
	}

	saved, err := s.users.UpsertByProviderID(ctx, user)
	if err != nil {
		return domain.User{}, fmt.Errorf("persist credentials: %w", err)
	}
	return saved, nil
}

// HandleCallback completes the flow: state validation (single use), code
// exchange, identity fetch, credential persistence and session issuance.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*Session, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}

	stateKey := buildStateKey(state)
	stored, err := s.states.GetState(ctx, stateKey)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if stored == nil || stored.State != state {
		return nil, domainoauth.ErrInvalidState
	}
	defer func() {
		if err := s.states.DeleteState(ctx, stateKey); err != nil {
			s.log().Warn("failed to delete auth state", zap.Error(err))
		}
	}()

	tokens, err := s.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	identity, err := s.FetchIdentity(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.PersistCredentials(ctx, identity, tokens)
	if err != nil {
		return nil, err
	}

	sessionToken, err := s.IssueSession(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &Session{
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Picture:      user.AvatarURL,
		SessionToken: sessionToken,
		ExpiresIn:    int64(s.cfg.SessionTTL.Seconds()),
	}, nil
}

// IssueSession produces an application session token for the user.
func (s *Service) IssueSession(userID int64, email string) (string, error) {
	token, err := s.signer.Issue(userID, email)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	return token, nil
}

// VerifySession validates an application session token.
func (s *Service) VerifySession(token string) (*sessions.Claims, error) {
	return s.signer.Verify(token)
}

func (s *Service) loadUser(ctx context.Context, userID int64) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domainoauth.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *Service) absoluteExpiry(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := s.now().UTC().Add(time.Duration(expiresIn) * time.Second)
	return &t
}

func (s *Service) providerTimeout() time.Duration {
	if s.cfg.ProviderTimeout > 0 {
		return s.cfg.ProviderTimeout
	}
	return 10 * time.Second
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func buildStateKey(state string) string {
	return statePrefix + strings.TrimSpace(state)
}

func secureRandomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

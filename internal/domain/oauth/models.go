package oauth

import "time"

// TokenResponse models the response from the external provider's token
// endpoint. It is transient: it is never persisted as-is, only converted into
// an encrypted credential update.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	IDToken      string
	Scope        string
	Raw          map[string]any
}

// Identity represents the normalized profile data returned by the provider.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// AuthState captures the CSRF state persisted across the authorization
// redirect. Single-use: it is deleted on first callback.
type AuthState struct {
	State       string
	RedirectURI string
	CreatedAt   time.Time
}

// Status is the user-facing authentication status derived from the stored
// credential record.
type Status struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	NeedsReauth   bool       `json:"needs_reauth"`
}

// CredentialUpdate carries the encrypted fields written back after a code
// exchange or refresh.
type CredentialUpdate struct {
	AccessTokenCipher  string
	RefreshTokenCipher string
	TokenExpiry        *time.Time
}

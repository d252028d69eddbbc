package sessions

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ErrInvalidSession covers signature mismatch, malformed structure and expiry.
// The three cases deliberately collapse into one externally visible error.
var ErrInvalidSession = errors.New("sessions: invalid session")

const issuer = "stillontime-auth"

// Claims carry the application session identity. Session validity is
// independent of the stored provider credentials: a provider outage must not
// log the user out.
type Claims struct {
	UserID   int64
	Email    string
	IssuedAt time.Time
	Expiry   time.Time
}

type customClaims struct {
	Email string `json:"email"`
}

// Signer issues and verifies short-lived HS256 session tokens. The signing
// secret is distinct from the token-encryption key.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a Signer with the given secret and token lifetime.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue produces a signed session token for the user.
func (s *Signer) Issue(userID int64, email string) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: s.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := s.now().UTC()
	std := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(customClaims{Email: email}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize session token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a session token. Every failure mode maps to
// ErrInvalidSession.
func (s *Signer) Verify(token string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, ErrInvalidSession
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(s.secret, &std, &custom); err != nil {
		return nil, ErrInvalidSession
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: issuer, Time: s.now().UTC()}, 0); err != nil {
		return nil, ErrInvalidSession
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidSession
	}

	claims := &Claims{UserID: userID, Email: custom.Email}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.Expiry = std.Expiry.Time()
	}
	return claims, nil
}

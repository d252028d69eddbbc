package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/makaronz/stillontime-auth/internal/sessions"
)

const (
	sessionClaimsKey = "sessionClaims"

	// SessionCookie is the HttpOnly cookie carrying the application session.
	SessionCookie = "st_session"
)

// Session validates the application session token and attaches its claims.
type Session struct {
	Signer *sessions.Signer
}

// Require ensures the request carries a valid session token, from the session
// cookie or an Authorization bearer header.
func (m *Session) Require(c *gin.Context) {
	token := tokenFromRequest(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session", "error_description": "Session token required."})
		return
	}

	claims, err := m.Signer.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session", "error_description": "Please sign in again."})
		return
	}

	c.Set(sessionClaimsKey, claims)
	c.Next()
}

// GetSessionClaims exposes the verified session claims to handlers.
func GetSessionClaims(c *gin.Context) (*sessions.Claims, bool) {
	value, ok := c.Get(sessionClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*sessions.Claims)
	return claims, ok
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

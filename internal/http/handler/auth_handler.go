package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainoauth "github.com/makaronz/stillontime-auth/internal/domain/oauth"
	"github.com/makaronz/stillontime-auth/internal/http/middleware"
	"github.com/makaronz/stillontime-auth/internal/secret"
	authsvc "github.com/makaronz/stillontime-auth/internal/service/auth"
)

// AuthHandler orchestrates the OAuth endpoints.
type AuthHandler struct {
	Auth   *authsvc.Service
	Logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *authsvc.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Logger: logger}
}

// OAuthStart generates the provider authorization URL bound to a fresh state.
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	out, err := h.Auth.StartAuthorization(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": out.AuthorizationURL,
		"state":             out.State,
	})
}

// OAuthCallback completes the code exchange, issues the session cookie, and
// redirects back into the application.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	state := strings.TrimSpace(c.Query("state"))
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "code and state are required."})
		return
	}

	session, err := h.Auth.HandleCallback(c.Request.Context(), code, state)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	expiry := time.Now().Add(time.Duration(session.ExpiresIn) * time.Second)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.SessionToken,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	c.Redirect(http.StatusFound, "/")
}

// Status reports the provider credential status for the signed-in user.
func (h *AuthHandler) Status(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return
	}
	status, err := h.Auth.GetStatus(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Token returns a currently-valid provider access token for the signed-in
// user, refreshing transparently when needed.
func (h *AuthHandler) Token(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return
	}
	token, err := h.Auth.GetValidAccessToken(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer"})
}

// Logout revokes provider credentials and clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return
	}
	if err := h.Auth.Revoke(c.Request.Context(), claims.UserID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.Status(http.StatusNoContent)
}

// Me returns the verified session claims.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": claims.UserID,
		"email":   claims.Email,
		"expiry":  claims.Expiry,
	})
}

// Healthz is the liveness endpoint.
func (h *AuthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondServiceError maps core errors to HTTP responses. Provider payloads
// and cipher details never reach the client.
func (h *AuthHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainoauth.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid request."})
	case errors.Is(err, domainoauth.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "Authorization state is invalid or expired. Please sign in again."})
	case errors.Is(err, domainoauth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found", "error_description": "Unknown user."})
	case errors.Is(err, domainoauth.ErrReauthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "reauthentication_required", "error_description": "Please sign in again."})
	case errors.Is(err, domainoauth.ErrRefreshFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh_failed", "error_description": "Temporarily unable to refresh credentials. Please retry."})
	case errors.Is(err, domainoauth.ErrTokenExchange), errors.Is(err, domainoauth.ErrIncompleteIdentity):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_error", "error_description": "Sign-in could not be completed. Please try again."})
	case errors.Is(err, secret.ErrDecryption):
		h.log().Error("stored credential could not be decrypted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Please sign in again."})
	default:
		h.log().Error("auth request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unexpected error."})
	}
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

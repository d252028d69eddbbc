package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/makaronz/stillontime-auth/internal/config"
	"github.com/makaronz/stillontime-auth/internal/http/handler"
	httpmiddleware "github.com/makaronz/stillontime-auth/internal/http/middleware"
	"github.com/makaronz/stillontime-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, session *httpmiddleware.Session, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", authHandler.Healthz)

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/oauth/start", authHandler.OAuthStart)
		authGroup.GET("/oauth/callback", authHandler.OAuthCallback)

		authGroup.GET("/status", session.Require, authHandler.Status)
		authGroup.GET("/me", session.Require, authHandler.Me)
		authGroup.POST("/token", session.Require, authHandler.Token)
		authGroup.POST("/logout", session.Require, authHandler.Logout)
	}

	return r
}

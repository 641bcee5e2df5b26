// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/windcore/authsvc/internal/config"
	"github.com/windcore/authsvc/internal/handler"
	"github.com/windcore/authsvc/internal/middleware"
)

// anonymousPaths are the only routes that bypass bearer-token
// processing: registration, login and the health probe. Everything else,
// refresh and logout included, requires a valid, non-revoked access token
// before the handler runs.
var anonymousPaths = map[string]bool{
	"/healthz":          true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
}

// Register sets up all routes. The bearer middleware is installed
// globally with a skipper for anonymous-marked paths, mirroring how the
// token handler decides per endpoint rather than per group.
func Register(e *echo.Echo, a *handler.AuthHandler, v middleware.Validator, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	e.Use(middleware.BearerAuth(v, func(c echo.Context) bool {
		return anonymousPaths[c.Path()]
	}))

	e.GET("/healthz", handler.Health)

	g := e.Group("/v1/auth")
	limited := middleware.RateLimit(rlCfg, rdb)
	g.POST("/register", a.Register, limited)
	g.POST("/login", a.Login, limited)
	g.POST("/refresh", a.Refresh, limited) // protected by BearerAuth above
	g.POST("/logout", a.Logout)            // protected by BearerAuth above
}

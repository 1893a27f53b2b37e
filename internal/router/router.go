package router // package router defines how HTTP routes are registered for the API

import (
	"net"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/handler"
	"github.com/iliyamo/club-manager/internal/middleware"
	"github.com/iliyamo/club-manager/internal/model"
)

// NewEcho builds the server with client addresses taken from the peer, or
// from X-Forwarded-For when the peer is one of trusted.
func NewEcho(trusted []*net.IPNet) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = middleware.ClientIP(trusted)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.  A
// nil metrics handler leaves /metrics unregistered.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	e.GET("/healthz", handler.Health(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers the auth endpoints.  Session operations that work
// from a refresh token live under /v1/auth behind the edge limiter; the
// rest need an access token (or the service token for introspection).
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate *auth.Gate, limiter echo.MiddlewareFunc) {
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	pub := e.Group("/v1/auth", limiter)
	pub.POST("/login", a.Login)
	pub.POST("/refresh", a.Refresh)
	pub.POST("/logout", a.Logout)

	user := middleware.Gate(gate, auth.AccessUser)
	e.POST("/v1/auth/logout-all", a.LogoutAll, limiter, user)
	e.POST("/v1/auth/introspect", a.Introspect, limiter, middleware.Gate(gate, auth.AccessServiceOrUser))

	v1 := e.Group("/v1", user)
	v1.GET("/me", a.Me)

	// Ending every session of a member is a committee decision.
	admin := e.Group("/v1/admin", user, middleware.RequireRole(model.RoleCommittee))
	admin.DELETE("/users/:id/sessions", a.RevokeSessions)
}

package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/model"
)

// Context keys set by Gate.  "user_id" keeps the name handlers and the
// rate limiter have always read.
const (
	principalKey = "principal"
	userIDKey    = "user_id"
)

// CurrentPrincipal returns the caller resolved by Gate, or the zero
// Principal on public routes.
func CurrentPrincipal(c echo.Context) auth.Principal {
	p, _ := c.Get(principalKey).(auth.Principal)
	return p
}

// CurrentUser returns the authenticated user, nil for service callers and
// anonymous requests.
func CurrentUser(c echo.Context) *model.User {
	return CurrentPrincipal(c).User
}

// userID identifies the caller for rate limiting and access logs.
func userID(c echo.Context) string {
	p := CurrentPrincipal(c)
	switch {
	case p.User != nil:
		return strconv.FormatUint(p.User.ID, 10)
	case p.Service:
		return "service"
	}
	return "guest"
}

func setPrincipal(c echo.Context, p auth.Principal) {
	c.Set(principalKey, p)
	if p.User != nil {
		c.Set(userIDKey, p.User.ID)
	}
}

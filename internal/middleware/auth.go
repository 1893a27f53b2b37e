package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/club-manager/internal/auth"
)

// Gate returns a middleware enforcing the access class on every request
// of the group it wraps.  On success the caller is available through
// CurrentPrincipal and CurrentUser.
func Gate(g *auth.Gate, access auth.Access) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			p, err := g.Resolve(c.Request().Context(), access, header)
			if err != nil {
				return RespondError(c, err)
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

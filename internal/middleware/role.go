package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/model"
)

// RequireRole rejects callers whose role is not one of roles.  It must run
// after Gate.  Admins always pass; service callers never do, since they
// carry no role.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := auth.RequireRole(CurrentUser(c), roles...); err != nil {
				return RespondError(c, err)
			}
			return next(c)
		}
	}
}

package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/club-manager/internal/auth"
)

// StatusOf maps an auth failure code to its HTTP status.
func StatusOf(code auth.Code) int {
	switch code {
	case auth.CodeMissingParam, auth.CodeInvalidParam:
		return http.StatusBadRequest
	case auth.CodeInvalidToken, auth.CodeTokenExpired, auth.CodeInvalidSignature,
		auth.CodeInvalidCredentials, auth.CodeUnauthorized:
		return http.StatusUnauthorized
	case auth.CodeAccountNotFound:
		return http.StatusNotFound
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	case auth.CodeForbidden:
		return http.StatusForbidden
	case auth.CodeConfigError:
		return http.StatusInternalServerError
	}
	return http.StatusServiceUnavailable
}

// RespondError writes err as {"error": code}.  Only the code reaches the
// client; the cause stays in the logs.
func RespondError(c echo.Context, err error) error {
	code := auth.CodeOf(err)
	if code == auth.CodeRateLimited {
		var ae *auth.Error
		if errors.As(err, &ae) && ae.RetryAfter > 0 {
			secs := int((ae.RetryAfter + time.Second - 1) / time.Second)
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	if code == auth.CodeUnauthorized || code == auth.CodeInvalidToken ||
		code == auth.CodeTokenExpired || code == auth.CodeInvalidSignature {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="`+string(code)+`"`)
	}
	return c.JSON(StatusOf(code), echo.Map{"error": string(code)})
}

package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/middleware"
	"github.com/iliyamo/club-manager/internal/model"
)

// requestTimeout bounds the store work of a single auth request.  A
// timeout surfaces as 503 unavailable and is safe to retry.
const requestTimeout = 5 * time.Second

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	Login(ctx context.Context, identifier, password, origin string) (auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uint64) (int64, error)
	Authenticate(ctx context.Context, bearer string) (*model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{Svc: svc}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type introspectReq struct {
	Token string `json:"token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    *userPart `json:"user,omitempty"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}
type introspectResp struct {
	Active bool      `json:"active"`
	User   *userPart `json:"user,omitempty"`
	Error  string    `json:"error,omitempty"`
}

func toUserPart(u *model.User) *userPart {
	if u == nil {
		return nil
	}
	return &userPart{ID: u.ID, Email: u.Email, Role: string(u.Role)}
}

func pairResp(u *model.User, p auth.TokenPair) authResp {
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: p.AccessToken, Expires: p.AccessExpiresAt},
		Refresh: tokenPart{Token: p.RefreshToken, Expires: p.RefreshExpiresAt},
	}
}

// Login: verify credentials from the caller's address and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return middleware.RespondError(c, auth.ErrInvalidParam)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Svc.Login(ctx, req.Email, req.Password, c.RealIP())
	if err != nil {
		return middleware.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, pairResp(&res.User, res.TokenPair))
}

// Refresh: rotate the refresh token and return a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return middleware.RespondError(c, auth.ErrInvalidParam)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return middleware.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, pairResp(nil, pair))
}

// Logout revokes the refresh token in the body.  It needs no access token
// and answers 204 even for tokens that were already invalid.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return middleware.RespondError(c, auth.ErrInvalidParam)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.Logout(ctx, req.RefreshToken); err != nil {
		return middleware.RespondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	u := middleware.CurrentUser(c)
	if err := auth.RequireAuth(u); err != nil {
		return middleware.RespondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Svc.LogoutAll(ctx, u.ID)
	if err != nil {
		return middleware.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}

// RevokeSessions is the admin variant of LogoutAll for the user in :id.
func (h *AuthHandler) RevokeSessions(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return middleware.RespondError(c, auth.ErrInvalidParam)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Svc.LogoutAll(ctx, id)
	if err != nil {
		return middleware.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "revoked": n})
}

// Introspect tells another service whether an access token belongs to an
// active user.  Token problems answer active=false with the reason; only
// configuration and store failures are errors.
func (h *AuthHandler) Introspect(c echo.Context) error {
	var req introspectReq
	if err := c.Bind(&req); err != nil {
		return middleware.RespondError(c, auth.ErrInvalidParam)
	}
	if req.Token == "" {
		return middleware.RespondError(c, auth.ErrMissingParam)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.Authenticate(ctx, req.Token)
	switch auth.CodeOf(err) {
	case "":
	case auth.CodeConfigError, auth.CodeUnavailable:
		return middleware.RespondError(c, err)
	default:
		return c.JSON(http.StatusOK, introspectResp{Error: string(auth.CodeOf(err))})
	}
	if u == nil {
		return c.JSON(http.StatusOK, introspectResp{})
	}
	return c.JSON(http.StatusOK, introspectResp{Active: true, User: toUserPart(u)})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	u := middleware.CurrentUser(c)
	if err := auth.RequireAuth(u); err != nil {
		return middleware.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

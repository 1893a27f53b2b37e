package router

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/handler"
	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

type users map[uint64]model.User

func (u users) GetByID(_ context.Context, id uint64) (model.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return model.User{}, repository.ErrNotFound
}

type nopService struct {
	revoked []uint64
	origins []string
}

func (s *nopService) Login(_ context.Context, _, _, origin string) (auth.LoginResult, error) {
	s.origins = append(s.origins, origin)
	return auth.LoginResult{}, auth.ErrInvalidCredentials
}
func (*nopService) Refresh(context.Context, string) (auth.TokenPair, error) {
	return auth.TokenPair{}, auth.ErrInvalidToken
}
func (*nopService) Logout(context.Context, string) error { return nil }
func (s *nopService) LogoutAll(_ context.Context, id uint64) (int64, error) {
	s.revoked = append(s.revoked, id)
	return 1, nil
}
func (*nopService) Authenticate(context.Context, string) (*model.User, error) { return nil, nil }

func setup(t *testing.T, trusted ...*net.IPNet) (*echo.Echo, *security.TokenService, *nopService) {
	t.Helper()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens := security.NewTokenService("router-test-secret", security.ClockFunc(func() time.Time { return at }), 0, 0)
	gate := auth.NewGate(tokens, users{
		1: {ID: 1, Email: "athlete@example.com", Role: model.RoleAthlete, IsActive: true},
		2: {ID: 2, Email: "chair@example.com", Role: model.RoleCommittee, IsActive: true},
	}, "svc")
	svc := &nopService{}

	e := NewEcho(trusted)
	reg := prometheus.NewRegistry()
	RegisterRoutes(e, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	RegisterAuth(e, handler.NewAuthHandler(svc), gate, nil)
	return e, tokens, svc
}

func do(e *echo.Echo, method, path, authz, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutes(t *testing.T) {
	e, tokens, svc := setup(t)
	token := func(id uint64) string {
		tok, err := tokens.IssueAccess(id)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok.Token
	}

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"login is public", http.MethodPost, "/v1/auth/login", "", `{"email":"a@b.c","password":"x"}`, http.StatusUnauthorized},
		{"logout is public", http.MethodPost, "/v1/auth/logout", "", `{"refresh_token":"r"}`, http.StatusNoContent},
		{"me needs a token", http.MethodGet, "/v1/me", "", "", http.StatusUnauthorized},
		{"me", http.MethodGet, "/v1/me", token(1), "", http.StatusOK},
		{"me rejects the service token", http.MethodGet, "/v1/me", "Bearer svc", "", http.StatusUnauthorized},
		{"introspect accepts the service token", http.MethodPost, "/v1/auth/introspect", "Bearer svc", `{"token":"t"}`, http.StatusOK},
		{"logout-all", http.MethodPost, "/v1/auth/logout-all", token(1), "", http.StatusOK},
		{"admin route forbids athletes", http.MethodDelete, "/v1/admin/users/1/sessions", token(1), "", http.StatusForbidden},
		{"admin route for committee", http.MethodDelete, "/v1/admin/users/1/sessions", token(2), "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := do(e, tc.method, tc.path, tc.authz, tc.body); got != tc.status {
				t.Fatalf("%s %s = %d, want %d", tc.method, tc.path, got, tc.status)
			}
		})
	}

	if len(svc.revoked) != 2 || svc.revoked[0] != 1 || svc.revoked[1] != 1 {
		t.Fatalf("revoked = %v, want [1 1]", svc.revoked)
	}
}

func loginFrom(e *echo.Echo, remote, xff string) {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set(echo.HeaderXForwardedFor, xff)
	}
	req.Header.Set(echo.HeaderXRealIP, "192.0.2.99")
	e.ServeHTTP(httptest.NewRecorder(), req)
}

func TestLoginOriginIgnoresForwardedHeaders(t *testing.T) {
	e, _, svc := setup(t)
	for _, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		loginFrom(e, "198.51.100.50:40000", xff)
	}
	for i, got := range svc.origins {
		if got != "198.51.100.50" {
			t.Fatalf("login %d origin = %q, want the peer address", i+1, got)
		}
	}
	if len(svc.origins) != 3 {
		t.Fatalf("logins = %d, want 3", len(svc.origins))
	}
}

func TestLoginOriginBehindTrustedProxy(t *testing.T) {
	_, proxies, err := net.ParseCIDR("10.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}
	e, _, svc := setup(t, proxies)

	loginFrom(e, "10.1.2.3:5000", "203.0.113.5")
	loginFrom(e, "10.1.2.3:5000", "1.1.1.1, 203.0.113.6")
	loginFrom(e, "198.51.100.50:40000", "203.0.113.7")

	want := []string{"203.0.113.5", "203.0.113.6", "198.51.100.50"}
	if len(svc.origins) != len(want) {
		t.Fatalf("origins = %v, want %v", svc.origins, want)
	}
	for i := range want {
		if svc.origins[i] != want[i] {
			t.Fatalf("origins = %v, want %v", svc.origins, want)
		}
	}
}

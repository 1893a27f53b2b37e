package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/security"
)

func newTestGate(t *testing.T, users ...model.User) (*Gate, *security.TokenService) {
	t.Helper()
	tokens := security.NewTokenService(testSecret, newTestClock(), 0, 0)
	return NewGate(tokens, newMemUsers(users...), "svc-token"), tokens
}

func accessFor(t *testing.T, tokens *security.TokenService, id uint64) string {
	t.Helper()
	signed, err := tokens.IssueAccess(id)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return "Bearer " + signed.Token
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"BEARER x.y.z": "x.y.z",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGate_Resolve(t *testing.T) {
	active := model.User{ID: 1, Email: "a@example.com", Role: model.RoleAthlete, IsActive: true}
	inactive := model.User{ID: 2, Email: "b@example.com", Role: model.RoleCoach}
	g, tokens := newTestGate(t, active, inactive)
	ctx := context.Background()

	tests := []struct {
		name    string
		access  Access
		header  string
		want    Principal
		wantErr error
	}{
		{"public needs nothing", AccessPublic, "", Principal{}, nil},
		{"missing header", AccessUser, "", Principal{}, ErrUnauthorized},
		{"service token on service route", AccessServiceOrUser, "Bearer svc-token", Principal{Service: true}, nil},
		{"service token on user route", AccessUser, "Bearer svc-token", Principal{}, ErrInvalidToken},
		{"wrong service token", AccessServiceOrUser, "Bearer svc-tokem", Principal{}, ErrInvalidToken},
		{"inactive user", AccessUser, accessFor(t, tokens, 2), Principal{}, ErrUnauthorized},
		{"unknown user", AccessUser, accessFor(t, tokens, 99), Principal{}, ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.Resolve(ctx, tc.access, tc.header)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve() err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() err = %v", err)
			}
			if got.Service != tc.want.Service || got.User != nil {
				t.Fatalf("Resolve() = %+v, want %+v", got, tc.want)
			}
		})
	}

	p, err := g.Resolve(ctx, AccessServiceOrUser, accessFor(t, tokens, 1))
	if err != nil || p.User == nil || p.User.ID != 1 || p.Service {
		t.Fatalf("Resolve(user token) = %+v, %v", p, err)
	}
}

func TestGate_RefreshTokenIsNotAnAccessToken(t *testing.T) {
	g, tokens := newTestGate(t, model.User{ID: 1, IsActive: true})
	signed, err := tokens.IssueRefresh(1, "abc")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := g.Authenticate(context.Background(), signed.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Authenticate(refresh) err = %v, want invalid_token", err)
	}
}

func TestGate_NoServiceTokenConfigured(t *testing.T) {
	tokens := security.NewTokenService(testSecret, newTestClock(), 0, 0)
	g := NewGate(tokens, newMemUsers(), "")
	if _, err := g.Resolve(context.Background(), AccessServiceOrUser, "Bearer "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Resolve(empty bearer) err = %v, want unauthorized", err)
	}
}

func TestRequireRole(t *testing.T) {
	user := func(r model.Role, active bool) *model.User {
		return &model.User{ID: 1, Role: r, IsActive: active}
	}
	tests := []struct {
		name  string
		user  *model.User
		roles []model.Role
		want  error
	}{
		{"nil user", nil, []model.Role{model.RoleCoach}, ErrUnauthorized},
		{"inactive user", user(model.RoleCoach, false), []model.Role{model.RoleCoach}, ErrUnauthorized},
		{"matching role", user(model.RoleCoach, true), []model.Role{model.RoleCoach, model.RoleCommittee}, nil},
		{"other role", user(model.RoleAthlete, true), []model.Role{model.RoleCoach}, ErrForbidden},
		{"admin passes everything", user(model.RoleAdmin, true), []model.Role{model.RoleCommittee}, nil},
		{"admin passes empty list", user(model.RoleAdmin, true), nil, nil},
		{"empty list forbids", user(model.RoleCommittee, true), nil, ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := RequireRole(tc.user, tc.roles...)
			if tc.want == nil && err != nil {
				t.Fatalf("RequireRole() err = %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("RequireRole() err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Fatal("CodeOf(nil) should be empty")
	}
	if CodeOf(errors.New("boom")) != CodeUnavailable {
		t.Fatal("untyped errors should be unavailable")
	}
	wrapped := fail(CodeRateLimited, errors.New("locked"))
	if !errors.Is(wrapped, ErrRateLimited) || errors.Is(wrapped, ErrForbidden) {
		t.Fatal("Is should match by code")
	}
	if got := tokenError(security.ErrInvalidSignature); got.Code != CodeInvalidSignature {
		t.Fatalf("tokenError(signature) = %v", got.Code)
	}
}

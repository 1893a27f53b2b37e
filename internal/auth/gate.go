package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

// Access classifies what a route accepts as credentials.
type Access int

const (
	// AccessPublic routes need no credentials.
	AccessPublic Access = iota
	// AccessServiceOrUser routes accept the static service token or a user token.
	AccessServiceOrUser
	// AccessUser routes accept only a user access token.
	AccessUser
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessServiceOrUser:
		return "service_or_user"
	case AccessUser:
		return "user"
	}
	return "unknown"
}

// UserLookup loads users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Principal is the resolved caller of a request.  For service callers
// User is nil.
type Principal struct {
	User    *model.User
	Service bool
}

// Authenticated reports whether the request carried valid credentials.
func (p Principal) Authenticated() bool { return p.Service || p.User != nil }

// Gate makes the per-request authentication and authorization decision.
// Access tokens are verified without touching the refresh token store;
// the only read is the user row.
type Gate struct {
	tokens       *security.TokenService
	users        UserLookup
	serviceToken []byte
}

// NewGate builds a Gate.  An empty serviceToken disables service callers.
func NewGate(tokens *security.TokenService, users UserLookup, serviceToken string) *Gate {
	return &Gate{tokens: tokens, users: users, serviceToken: []byte(serviceToken)}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Authenticate resolves an access token to an active user.  A missing or
// inactive user yields (nil, nil).  Token failures come back as
// invalid_token, invalid_signature or token_expired so clients know when
// to refresh.
func (g *Gate) Authenticate(ctx context.Context, bearer string) (*model.User, error) {
	if bearer == "" {
		return nil, nil
	}
	claims, err := g.tokens.VerifyType(bearer, security.TokenAccess)
	if err != nil {
		return nil, tokenError(err)
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, tokenError(err)
	}
	u, err := g.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(CodeUnavailable, err)
	}
	if !u.IsActive {
		return nil, nil
	}
	return &u, nil
}

// Resolve applies the access class of a route to the Authorization header.
func (g *Gate) Resolve(ctx context.Context, access Access, authorization string) (Principal, error) {
	if access == AccessPublic {
		return Principal{}, nil
	}
	bearer := BearerToken(authorization)
	if bearer == "" {
		return Principal{}, ErrUnauthorized
	}
	if access == AccessServiceOrUser && g.isServiceToken(bearer) {
		return Principal{Service: true}, nil
	}
	u, err := g.Authenticate(ctx, bearer)
	if err != nil {
		return Principal{}, err
	}
	if err := RequireAuth(u); err != nil {
		return Principal{}, err
	}
	return Principal{User: u}, nil
}

func (g *Gate) isServiceToken(bearer string) bool {
	if len(g.serviceToken) == 0 {
		return false
	}
	b := []byte(bearer)
	if len(b) != len(g.serviceToken) {
		return false
	}
	return subtle.ConstantTimeCompare(b, g.serviceToken) == 1
}

// RequireAuth rejects a nil or inactive user with unauthorized.
func RequireAuth(u *model.User) error {
	if u == nil || !u.IsActive {
		return ErrUnauthorized
	}
	return nil
}

// RequireRole rejects users whose role is not in roles with forbidden.
// Admins pass every role check.  An unauthenticated user is unauthorized.
func RequireRole(u *model.User, roles ...model.Role) error {
	if err := RequireAuth(u); err != nil {
		return err
	}
	if u.Role == model.RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if u.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

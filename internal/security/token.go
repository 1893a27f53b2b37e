package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the `typ` payload claim separating access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrMissingSecret    = errors.New("signing secret not configured")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTokenExpired     = errors.New("token expired")
)

// Claims is a decoded token payload.  Numeric claims come back as float64
// after a round trip through JSON.
type Claims map[string]any

// Subject returns the `sub` claim as a string.  Tokens issued by older
// deployments carried a numeric subject, which is formatted here.
func (c Claims) Subject() string {
	switch v := c["sub"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatUint(uint64(v), 10)
	}
	return ""
}

// UserID parses the subject as a user id.
func (c Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject(), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// JTI returns the `jti` claim, empty for access tokens.
func (c Claims) JTI() string {
	s, _ := c["jti"].(string)
	return s
}

// Type returns the `typ` discriminator.
func (c Claims) Type() TokenType {
	s, _ := c["typ"].(string)
	return TokenType(s)
}

// ExpiresAt returns the `exp` claim as a time.
func (c Claims) ExpiresAt() time.Time {
	if v, ok := c["exp"].(float64); ok {
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}

// SignedToken is a serialized token together with its expiry.
type SignedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenService signs and verifies compact HS256 JWTs.  The wire format is
// base64url(header).base64url(payload).base64url(signature) without
// padding and header {"alg":"HS256","typ":"JWT"}.
type TokenService struct {
	secret     []byte
	clock      Clock
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService builds a TokenService.  Zero TTLs select the defaults
// (15 minutes access, 30 days refresh).  An empty secret is accepted here
// and reported as ErrMissingSecret on every Sign/Verify, so a misconfigured
// deployment fails each request instead of silently skipping auth.
func NewTokenService(secret string, clock Clock, accessTTL, refreshTTL time.Duration) *TokenService {
	if clock == nil {
		clock = SystemClock{}
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{secret: []byte(secret), clock: clock, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Configured reports whether a signing secret is set.
func (s *TokenService) Configured() bool { return len(s.secret) > 0 }

// AccessTTL returns the access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Sign adds iat, exp and typ to claims and signs the result.
func (s *TokenService) Sign(claims Claims, ttl time.Duration, typ TokenType) (SignedToken, error) {
	if len(s.secret) == 0 {
		return SignedToken{}, ErrMissingSecret
	}
	now := s.clock.Now()
	exp := now.Add(ttl)
	mc := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = exp.Unix()
	mc["typ"] = string(typ)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(s.secret)
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, ExpiresAt: time.Unix(exp.Unix(), 0).UTC()}, nil
}

// IssueAccess signs a short-lived access token carrying only the subject.
func (s *TokenService) IssueAccess(userID uint64) (SignedToken, error) {
	return s.Sign(Claims{"sub": strconv.FormatUint(userID, 10)}, s.accessTTL, TokenAccess)
}

// IssueRefresh signs a long-lived refresh token carrying the subject and jti.
func (s *TokenService) IssueRefresh(userID uint64, jti string) (SignedToken, error) {
	return s.Sign(Claims{"sub": strconv.FormatUint(userID, 10), "jti": jti}, s.refreshTTL, TokenRefresh)
}

// Verify checks the signature and expiry of raw and returns its payload.
// Only HS256 is accepted.  Errors are one of ErrMissingSecret,
// ErrInvalidToken, ErrInvalidSignature or ErrTokenExpired.
func (s *TokenService) Verify(raw string) (Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	// A token is expired once exp < now in whole seconds, so a token is
	// still accepted during its exp second.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now().Truncate(time.Second) }),
		jwt.WithLeeway(time.Second),
	)
	mc := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return Claims(mc), nil
}

// VerifyType is Verify plus a check of the typ discriminator and subject.
func (s *TokenService) VerifyType(raw string, typ TokenType) (Claims, error) {
	claims, err := s.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Type() != typ {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	if typ == TokenRefresh && claims.JTI() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrInvalidToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	}
	return ErrInvalidToken
}

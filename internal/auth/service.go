// Package auth implements login, token refresh, logout and the per-request
// authentication gate on top of the security primitives and the stores in
// the repository package.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/club-manager/internal/logger"
	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/queue"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

// Users is the user persistence the login flow needs, implemented by
// repository.UserRepo.
type Users interface {
	UserLookup
	GetByEmail(ctx context.Context, email string) (model.User, error)
	SetInitialPassword(ctx context.Context, id uint64, hash string) (bool, error)
	UpgradePasswordHash(ctx context.Context, id uint64, oldHash, newHash string) (bool, error)
}

// Hasher hashes and verifies passwords, implemented by
// security.PasswordHasher.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) (security.VerifyResult, error)
}

// Auditor receives auth events.  Publishing is fire and forget.
type Auditor interface {
	Publish(ctx context.Context, ev queue.AuthEvent)
}

type nopAuditor struct{}

func (nopAuditor) Publish(context.Context, queue.AuthEvent) {}

// Deps groups the collaborators of Service.  Log, Audit, Metrics and Clock
// are optional.
type Deps struct {
	Users    Users
	Hasher   Hasher
	Tokens   *security.TokenService
	Throttle *Throttle
	Refresh  *RefreshStore
	Gate     *Gate
	Log      *zap.Logger
	Audit    Auditor
	Metrics  *Metrics
	Clock    security.Clock
}

// Service is the auth surface consumed by the HTTP handlers.
type Service struct {
	users    Users
	hasher   Hasher
	tokens   *security.TokenService
	throttle *Throttle
	refresh  *RefreshStore
	gate     *Gate
	log      *zap.Logger
	audit    Auditor
	metrics  *Metrics
	clock    security.Clock

	decoyOnce sync.Once
	decoyHash string
}

// NewService wires a Service from d.
func NewService(d Deps) *Service {
	s := &Service{
		users:    d.Users,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		throttle: d.Throttle,
		refresh:  d.Refresh,
		gate:     d.Gate,
		log:      d.Log,
		audit:    d.Audit,
		metrics:  d.Metrics,
		clock:    d.Clock,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.audit == nil {
		s.audit = nopAuditor{}
	}
	if s.clock == nil {
		s.clock = security.SystemClock{}
	}
	return s
}

// TokenPair is an access token together with its refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User model.User
	TokenPair
}

// Login authenticates identifier/password from origin and issues a token
// pair.  A locked key is rejected before the user is even looked up.
// Unknown accounts and wrong passwords both answer invalid_credentials and
// both count against the throttle.
func (s *Service) Login(ctx context.Context, identifier, password, origin string) (res LoginResult, err error) {
	defer func() { s.metrics.login(err) }()

	if strings.TrimSpace(identifier) == "" || password == "" {
		return LoginResult{}, ErrMissingParam
	}
	if !s.tokens.Configured() {
		s.log.Error("login rejected: signing secret not configured")
		return LoginResult{}, ErrConfig
	}

	key := NewThrottleKey(identifier, origin)
	log := s.log.With(
		zap.String("identifier", logger.MaskEmail(key.Identifier)),
		zap.String("origin", logger.MaskIP(key.Origin)),
	)
	if err := s.throttle.Check(ctx, key); err != nil {
		if CodeOf(err) == CodeRateLimited {
			log.Info("login rejected: key locked")
		}
		return LoginResult{}, err
	}

	u, err := s.users.GetByEmail(ctx, key.Identifier)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.verifyDecoy(log, password)
		return LoginResult{}, s.loginFailed(ctx, log, key, 0, "unknown_account")
	case err != nil:
		log.Error("login: user lookup failed", zap.Error(err))
		return LoginResult{}, fail(CodeUnavailable, err)
	case !u.IsActive:
		s.verifyDecoy(log, password)
		return LoginResult{}, s.loginFailed(ctx, log, key, u.ID, "inactive_account")
	}

	if !u.HasPassword() {
		u, err = s.setInitialPassword(ctx, u, password)
		if err != nil {
			log.Error("login: setting initial password failed", zap.Error(err))
			return LoginResult{}, err
		}
	}

	vr, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		log.Error("login: password verification failed", zap.Error(err))
		return LoginResult{}, fail(CodeUnavailable, err)
	}
	if !vr.Valid {
		return LoginResult{}, s.loginFailed(ctx, log, key, u.ID, "wrong_password")
	}

	if err := s.throttle.Succeed(ctx, key); err != nil {
		log.Warn("login: clearing throttle counter failed", zap.Error(err))
	}
	if vr.NeedsUpgrade {
		s.upgradeHash(ctx, log, u, vr.NewHash)
	}

	pair, err := s.issuePair(ctx, u.ID)
	if err != nil {
		log.Error("login: issuing tokens failed", zap.Error(err))
		return LoginResult{}, err
	}

	ev := queue.NewAuthEvent(queue.EventLoginSucceeded, s.clock.Now())
	ev.UserID = u.ID
	ev.Identifier = logger.MaskEmail(key.Identifier)
	ev.Origin = logger.MaskIP(key.Origin)
	s.audit.Publish(ctx, ev)
	log.Info("login succeeded", zap.Uint64("user_id", u.ID))

	return LoginResult{User: u, TokenPair: pair}, nil
}

// decoyPassword only feeds the decoy hash; its verify result is discarded.
const decoyPassword = "decoy-password-for-unknown-accounts"

// verifyDecoy runs one full verification against a hash at the configured
// cost, so a login for an unknown or inactive account takes as long as a
// wrong password for a real one.
func (s *Service) verifyDecoy(log *zap.Logger, password string) {
	s.decoyOnce.Do(func() {
		h, err := s.hasher.Hash(decoyPassword)
		if err != nil {
			log.Warn("login: building decoy hash failed", zap.Error(err))
			return
		}
		s.decoyHash = h
	})
	_, _ = s.hasher.Verify(password, s.decoyHash)
}

// loginFailed records a failure for key and returns the error for the
// caller.  A store failure while recording wins over invalid_credentials
// so a broken store never lets attempts go uncounted silently.
func (s *Service) loginFailed(ctx context.Context, log *zap.Logger, key ThrottleKey, userID uint64, reason string) error {
	a, err := s.throttle.Fail(ctx, key)
	if err != nil {
		log.Error("login: recording failed attempt failed", zap.Error(err))
		return err
	}
	now := s.clock.Now()

	ev := queue.NewAuthEvent(queue.EventLoginFailed, now)
	ev.UserID = userID
	ev.Identifier = logger.MaskEmail(key.Identifier)
	ev.Origin = logger.MaskIP(key.Origin)
	ev.Reason = reason
	s.audit.Publish(ctx, ev)

	log.Info("login failed", zap.String("reason", reason), zap.Int("attempts", a.Attempts))
	if a.Locked(now) {
		locked := queue.NewAuthEvent(queue.EventAccountLocked, now)
		locked.UserID = userID
		locked.Identifier = ev.Identifier
		locked.Origin = ev.Origin
		s.audit.Publish(ctx, locked)
		s.metrics.lockout()
		log.Warn("login key locked", zap.Time("locked_until", *a.LockedUntil))
	}
	return ErrInvalidCredentials
}

// setInitialPassword stores the first password of an account created
// without one.  When a concurrent login set it first, the stored row is
// reloaded and verified normally.
func (s *Service) setInitialPassword(ctx context.Context, u model.User, password string) (model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return u, fail(CodeUnavailable, err)
	}
	ok, err := s.users.SetInitialPassword(ctx, u.ID, hash)
	if err != nil {
		return u, fail(CodeUnavailable, err)
	}
	if ok {
		u.PasswordHash = hash
		return u, nil
	}
	fresh, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		return u, fail(CodeUnavailable, err)
	}
	return fresh, nil
}

func (s *Service) upgradeHash(ctx context.Context, log *zap.Logger, u model.User, newHash string) {
	reason := "legacy_scheme"
	if strings.HasPrefix(u.PasswordHash, security.SchemePBKDF2+"$") {
		reason = "iterations"
	}
	ok, err := s.users.UpgradePasswordHash(ctx, u.ID, u.PasswordHash, newHash)
	if err != nil {
		log.Warn("login: password hash upgrade failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	s.metrics.upgrade(reason)
	ev := queue.NewAuthEvent(queue.EventPasswordUpgrade, s.clock.Now())
	ev.UserID = u.ID
	ev.Reason = reason
	s.audit.Publish(ctx, ev)
	log.Info("password hash upgraded", zap.Uint64("user_id", u.ID), zap.String("reason", reason))
}

func (s *Service) issuePair(ctx context.Context, userID uint64) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, tokenError(err)
	}
	refresh, err := s.refresh.Create(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token.Token,
		RefreshExpiresAt: refresh.Token.ExpiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a new pair and retires the old
// refresh token.  Reuse of a rotated token is rejected as invalid_token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair TokenPair, err error) {
	defer func() { s.metrics.refresh(err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrMissingParam
	}
	claims, err := s.tokens.VerifyType(refreshToken, security.TokenRefresh)
	if err != nil {
		return TokenPair{}, tokenError(err)
	}
	userID, _ := claims.UserID()
	jti := claims.JTI()

	if _, err := s.refresh.Validate(ctx, jti, userID); err != nil {
		if CodeOf(err) == CodeInvalidToken {
			s.log.Info("refresh rejected: token not active", zap.Uint64("user_id", userID))
		}
		return TokenPair{}, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return TokenPair{}, ErrAccountNotFound
	}
	if err != nil {
		return TokenPair{}, fail(CodeUnavailable, err)
	}

	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, tokenError(err)
	}
	next, err := s.refresh.Rotate(ctx, jti, userID)
	if err != nil {
		s.log.Info("refresh: rotation failed", zap.Uint64("user_id", userID), zap.Error(err))
		return TokenPair{}, err
	}

	ev := queue.NewAuthEvent(queue.EventTokenRefreshed, s.clock.Now())
	ev.UserID = userID
	s.audit.Publish(ctx, ev)

	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     next.Token.Token,
		RefreshExpiresAt: next.Token.ExpiresAt,
	}, nil
}

// Logout revokes refreshToken.  It is best effort: a token that does not
// verify is ignored, and only a configuration or store failure is returned.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrMissingParam
	}
	claims, err := s.tokens.VerifyType(refreshToken, security.TokenRefresh)
	if err != nil {
		if CodeOf(tokenError(err)) == CodeConfigError {
			return ErrConfig
		}
		return nil
	}
	userID, _ := claims.UserID()
	if err := s.refresh.Revoke(ctx, claims.JTI(), userID); err != nil {
		s.log.Warn("logout: revoke failed", zap.Uint64("user_id", userID), zap.Error(err))
		return err
	}

	ev := queue.NewAuthEvent(queue.EventLogout, s.clock.Now())
	ev.UserID = userID
	s.audit.Publish(ctx, ev)
	return nil
}

// LogoutAll revokes every active refresh token of userID and returns how
// many were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID uint64) (int64, error) {
	if userID == 0 {
		return 0, ErrInvalidParam
	}
	n, err := s.refresh.RevokeAll(ctx, userID)
	if err != nil {
		s.log.Warn("logout-all: revoke failed", zap.Uint64("user_id", userID), zap.Error(err))
		return 0, err
	}

	ev := queue.NewAuthEvent(queue.EventLogoutAll, s.clock.Now())
	ev.UserID = userID
	s.audit.Publish(ctx, ev)
	s.log.Info("sessions revoked", zap.Uint64("user_id", userID), zap.Int64("count", n))
	return n, nil
}

// Authenticate resolves an access token to an active user or nil.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*model.User, error) {
	return s.gate.Authenticate(ctx, bearer)
}

// RequireRole is the role gate, see the package level RequireRole.
func (s *Service) RequireRole(u *model.User, roles ...model.Role) error {
	return RequireRole(u, roles...)
}

// Gate returns the request gate used by the middleware.
func (s *Service) Gate() *Gate { return s.gate }

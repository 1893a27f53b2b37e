package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

// RefreshRecords is the persistence behind RefreshStore, implemented by
// repository.TokenRepo.
type RefreshRecords interface {
	Insert(ctx context.Context, t model.RefreshToken) error
	Find(ctx context.Context, jtiHash string, userID uint64) (model.RefreshToken, error)
	MarkReplaced(ctx context.Context, oldHash string, userID uint64, newHash string, at time.Time) (bool, error)
	Revoke(ctx context.Context, jtiHash string, userID uint64, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) (int64, error)
}

// IssuedRefresh is a freshly created refresh token and its raw id.
type IssuedRefresh struct {
	JTI   string
	Token security.SignedToken
}

// RefreshStore issues, validates, rotates and revokes refresh tokens.
type RefreshStore struct {
	records RefreshRecords
	tokens  *security.TokenService
	clock   security.Clock
	rand    io.Reader
}

// NewRefreshStore builds a RefreshStore.  A nil reader means crypto/rand.
func NewRefreshStore(records RefreshRecords, tokens *security.TokenService, clock security.Clock, r io.Reader) *RefreshStore {
	if clock == nil {
		clock = security.SystemClock{}
	}
	if r == nil {
		r = rand.Reader
	}
	return &RefreshStore{records: records, tokens: tokens, clock: clock, rand: r}
}

// Create signs a refresh token for userID and persists its record.
func (s *RefreshStore) Create(ctx context.Context, userID uint64) (IssuedRefresh, error) {
	jti, err := security.NewTokenID(s.rand)
	if err != nil {
		return IssuedRefresh{}, fail(CodeUnavailable, err)
	}
	signed, err := s.tokens.IssueRefresh(userID, jti)
	if err != nil {
		return IssuedRefresh{}, tokenError(err)
	}
	rec := model.RefreshToken{
		JTIHash:   security.HashTokenID(jti),
		UserID:    userID,
		IssuedAt:  s.clock.Now(),
		ExpiresAt: signed.ExpiresAt,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		return IssuedRefresh{}, fail(CodeUnavailable, err)
	}
	return IssuedRefresh{JTI: jti, Token: signed}, nil
}

// Validate returns the record for jti if it is active.  Unknown, revoked
// and expired ids all yield the same invalid_token.
func (s *RefreshStore) Validate(ctx context.Context, jti string, userID uint64) (model.RefreshToken, error) {
	rec, err := s.records.Find(ctx, security.HashTokenID(jti), userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.RefreshToken{}, ErrInvalidToken
	}
	if err != nil {
		return model.RefreshToken{}, fail(CodeUnavailable, err)
	}
	if !rec.Usable(s.clock.Now()) {
		return model.RefreshToken{}, ErrInvalidToken
	}
	return rec, nil
}

// Rotate replaces oldJTI with a new token.  The successor is persisted
// before the predecessor is revoked, so a failure in between leaves the
// old token usable instead of leaving the user with none.  When another
// rotation revoked oldJTI first, the successor created here is revoked
// again and invalid_token is returned.
func (s *RefreshStore) Rotate(ctx context.Context, oldJTI string, userID uint64) (IssuedRefresh, error) {
	next, err := s.Create(ctx, userID)
	if err != nil {
		return IssuedRefresh{}, err
	}
	now := s.clock.Now()
	newHash := security.HashTokenID(next.JTI)
	ok, err := s.records.MarkReplaced(ctx, security.HashTokenID(oldJTI), userID, newHash, now)
	if err != nil {
		return IssuedRefresh{}, fail(CodeUnavailable, err)
	}
	if !ok {
		_, _ = s.records.Revoke(ctx, newHash, userID, now)
		return IssuedRefresh{}, ErrInvalidToken
	}
	return next, nil
}

// Revoke marks jti revoked.  Revoking an already revoked or unknown id is
// not an error.
func (s *RefreshStore) Revoke(ctx context.Context, jti string, userID uint64) error {
	if _, err := s.records.Revoke(ctx, security.HashTokenID(jti), userID, s.clock.Now()); err != nil {
		return fail(CodeUnavailable, err)
	}
	return nil
}

// RevokeAll revokes every active refresh token of userID.
func (s *RefreshStore) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.records.RevokeAllForUser(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, fail(CodeUnavailable, err)
	}
	return n, nil
}

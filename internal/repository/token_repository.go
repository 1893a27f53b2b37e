package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/club-manager/internal/model"
)

// TokenRepo persists refresh token records keyed by the digest of their
// jti.  Rows are only ever inserted or revoked, never deleted.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Insert stores a new refresh token record.
func (r *TokenRepo) Insert(ctx context.Context, t model.RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (jti_hash, user_id, issued_at, expires_at) VALUES (?,?,?,?)",
		t.JTIHash, t.UserID, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Find returns the record for jtiHash owned by userID, revoked or not.
func (r *TokenRepo) Find(ctx context.Context, jtiHash string, userID uint64) (model.RefreshToken, error) {
	var (
		t          model.RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, jti_hash, user_id, issued_at, expires_at, revoked_at, replaced_by FROM refresh_tokens WHERE jti_hash=? AND user_id=? LIMIT 1",
		jtiHash, userID).Scan(&t.ID, &t.JTIHash, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &revokedAt, &replacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	if replacedBy.Valid {
		s := replacedBy.String
		t.ReplacedBy = &s
	}
	return t, nil
}

// MarkReplaced revokes the record for oldHash and links it to its
// successor.  It reports false when the record was already revoked.
func (r *TokenRepo) MarkReplaced(ctx context.Context, oldHash string, userID uint64, newHash string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=?, replaced_by=? WHERE jti_hash=? AND user_id=? AND revoked_at IS NULL",
		at, newHash, oldHash, userID)
	if err != nil {
		return false, fmt.Errorf("mark refresh token replaced: %w", err)
	}
	return affected(res)
}

// Revoke marks a single record revoked.  Revoking twice is a no-op that
// reports false.
func (r *TokenRepo) Revoke(ctx context.Context, jtiHash string, userID uint64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE jti_hash=? AND user_id=? AND revoked_at IS NULL",
		at, jtiHash, userID)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return affected(res)
}

// RevokeAllForUser revokes all of a user's active tokens and returns how
// many were revoked.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		at, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

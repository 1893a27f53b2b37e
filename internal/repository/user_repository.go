package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/club-manager/internal/model"
)

const userColumns = "id,email,password_hash,role,is_active,created_at,updated_at"

// UserRepo reads users and maintains their password hash.  The users table
// belongs to the CRUD layer; nothing here creates or deletes users.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail lower-cases and trims a login identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		NormalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1",
		id)
	return scanUser(row)
}

// SetInitialPassword stores hash for a user that has no password yet.  It
// reports false when another request set one first.
func (r *UserRepo) SetInitialPassword(ctx context.Context, id uint64, hash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=UTC_TIMESTAMP() WHERE id=? AND (password_hash IS NULL OR password_hash='')",
		hash, id)
	if err != nil {
		return false, fmt.Errorf("set initial password: %w", err)
	}
	return affected(res)
}

// UpgradePasswordHash replaces oldHash with newHash.  The compare-and-set
// keeps a concurrent password change from being overwritten by a rehash.
func (r *UserRepo) UpgradePasswordHash(ctx context.Context, id uint64, oldHash, newHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=UTC_TIMESTAMP() WHERE id=? AND password_hash=?",
		newHash, id, oldHash)
	if err != nil {
		return false, fmt.Errorf("upgrade password hash: %w", err)
	}
	return affected(res)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u    model.User
		hash sql.NullString
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &hash, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.PasswordHash = hash.String
	u.Role = model.Role(strings.ToLower(role))
	return u, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/club-manager/internal/model"
)

// AttemptRepo stores failed login counters in `login_attempts`, whose
// primary key is (identifier, origin).
type AttemptRepo struct{ DB *sql.DB }

func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{DB: db} }

// recordFailureSQL performs the whole sliding-window transition in one
// statement.  MySQL applies ON DUPLICATE KEY UPDATE assignments left to
// right, so `attempts` is already the new count when locked_until and
// first_attempt_at are evaluated; attempts=1 marks a window restart.
const recordFailureSQL = `INSERT INTO login_attempts (identifier, origin, attempts, first_attempt_at, locked_until)
VALUES (?, ?, 1, ?, ?)
ON DUPLICATE KEY UPDATE
  attempts = IF(first_attempt_at < ?, 1, attempts + 1),
  locked_until = IF(attempts >= ?, ?, NULL),
  first_attempt_at = IF(attempts = 1, ?, first_attempt_at)`

// Get returns the counter row for a key.
func (r *AttemptRepo) Get(ctx context.Context, identifier, origin string) (model.LoginAttempt, error) {
	var (
		a           model.LoginAttempt
		lockedUntil sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT identifier, origin, attempts, first_attempt_at, locked_until FROM login_attempts WHERE identifier=? AND origin=? LIMIT 1",
		identifier, origin).Scan(&a.Identifier, &a.Origin, &a.Attempts, &a.FirstAttemptAt, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LoginAttempt{}, ErrNotFound
	}
	if err != nil {
		return model.LoginAttempt{}, fmt.Errorf("get login attempts: %w", err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	return a, nil
}

// RecordFailure counts one failed attempt at now and returns the row as
// it stands afterwards.
func (r *AttemptRepo) RecordFailure(ctx context.Context, identifier, origin string, now time.Time, p model.ThrottlePolicy) (model.LoginAttempt, error) {
	lockUntil := now.Add(p.Lockout)
	var firstLock any
	if p.MaxAttempts <= 1 {
		firstLock = lockUntil
	}
	_, err := r.DB.ExecContext(ctx, recordFailureSQL,
		identifier, origin, now, firstLock,
		now.Add(-p.Window),
		p.MaxAttempts, lockUntil,
		now,
	)
	if err != nil {
		return model.LoginAttempt{}, fmt.Errorf("record login failure: %w", err)
	}
	return r.Get(ctx, identifier, origin)
}

// Delete removes the counter for a key.
func (r *AttemptRepo) Delete(ctx context.Context, identifier, origin string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM login_attempts WHERE identifier=? AND origin=?",
		identifier, origin)
	if err != nil {
		return fmt.Errorf("delete login attempts: %w", err)
	}
	return nil
}

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/queue"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingHasher records every stored hash Verify is asked to check.
type countingHasher struct {
	*security.PasswordHasher
	mu       sync.Mutex
	verified []string
}

func (c *countingHasher) Verify(password, stored string) (security.VerifyResult, error) {
	c.mu.Lock()
	c.verified = append(c.verified, stored)
	c.mu.Unlock()
	return c.PasswordHasher.Verify(password, stored)
}

func (c *countingHasher) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.verified...)
}

type memUsers struct {
	mu         sync.Mutex
	byID       map[uint64]model.User
	emailCalls int
	fail       error
}

func newMemUsers(users ...model.User) *memUsers {
	m := &memUsers{byID: map[uint64]model.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) get(id uint64) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailCalls++
	if m.fail != nil {
		return model.User{}, m.fail
	}
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.User{}, m.fail
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) SetInitialPassword(_ context.Context, id uint64, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.PasswordHash != "" {
		return false, nil
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return true, nil
}

func (m *memUsers) UpgradePasswordHash(_ context.Context, id uint64, oldHash, newHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.PasswordHash != oldHash {
		return false, nil
	}
	u.PasswordHash = newHash
	m.byID[id] = u
	return true, nil
}

// memAttempts applies the same transition as the SQL upsert under a lock.
type memAttempts struct {
	mu   sync.Mutex
	rows map[[2]string]model.LoginAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{rows: map[[2]string]model.LoginAttempt{}}
}

func (m *memAttempts) Get(_ context.Context, identifier, origin string) (model.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[[2]string{identifier, origin}]
	if !ok {
		return model.LoginAttempt{}, repository.ErrNotFound
	}
	return a, nil
}

func (m *memAttempts) RecordFailure(_ context.Context, identifier, origin string, now time.Time, p model.ThrottlePolicy) (model.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]string{identifier, origin}
	a, ok := m.rows[k]
	if !ok || now.Sub(a.FirstAttemptAt) > p.Window {
		a = model.LoginAttempt{Identifier: identifier, Origin: origin, FirstAttemptAt: now}
	}
	a.Attempts++
	a.LockedUntil = nil
	if a.Attempts >= p.MaxAttempts {
		until := now.Add(p.Lockout)
		a.LockedUntil = &until
	}
	m.rows[k] = a
	return a, nil
}

func (m *memAttempts) Delete(_ context.Context, identifier, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, [2]string{identifier, origin})
	return nil
}

func (m *memAttempts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memRecords struct {
	mu      sync.Mutex
	rows    map[string]model.RefreshToken
	markErr error
}

func newMemRecords() *memRecords {
	return &memRecords{rows: map[string]model.RefreshToken{}}
}

func (m *memRecords) Insert(_ context.Context, t model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uint64(len(m.rows) + 1)
	m.rows[t.JTIHash] = t
	return nil
}

func (m *memRecords) Find(_ context.Context, jtiHash string, userID uint64) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[jtiHash]
	if !ok || t.UserID != userID {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (m *memRecords) MarkReplaced(_ context.Context, oldHash string, userID uint64, newHash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	t, ok := m.rows[oldHash]
	if !ok || t.UserID != userID || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	t.ReplacedBy = &newHash
	m.rows[oldHash] = t
	return true, nil
}

func (m *memRecords) Revoke(_ context.Context, jtiHash string, userID uint64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[jtiHash]
	if !ok || t.UserID != userID || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	m.rows[jtiHash] = t
	return true, nil
}

func (m *memRecords) RevokeAllForUser(_ context.Context, userID uint64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			m.rows[k] = t
			n++
		}
	}
	return n, nil
}

func (m *memRecords) active(userID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (r *recordingAuditor) Publish(_ context.Context, ev queue.AuthEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingAuditor) count(typ queue.AuthEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

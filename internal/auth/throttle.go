package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/club-manager/internal/model"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

// AttemptStore persists failed-login counters.  RecordFailure must apply
// the sliding-window transition atomically in the store; implementations
// live in the repository package (MySQL upsert, Redis script).
type AttemptStore interface {
	Get(ctx context.Context, identifier, origin string) (model.LoginAttempt, error)
	RecordFailure(ctx context.Context, identifier, origin string, now time.Time, p model.ThrottlePolicy) (model.LoginAttempt, error)
	Delete(ctx context.Context, identifier, origin string) error
}

// ThrottleKey identifies a throttle counter.
type ThrottleKey struct {
	Identifier string
	Origin     string
}

// NewThrottleKey normalizes the identifier and origin.
func NewThrottleKey(identifier, origin string) ThrottleKey {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = "unknown"
	}
	return ThrottleKey{Identifier: repository.NormalizeEmail(identifier), Origin: origin}
}

// Throttle is the brute-force login limiter.  Per key it moves
// Clear -> Counting -> Locked -> Clear; all state lives in the store.
type Throttle struct {
	store  AttemptStore
	policy model.ThrottlePolicy
	clock  security.Clock
}

// NewThrottle fills zero policy fields from model.DefaultThrottlePolicy.
func NewThrottle(store AttemptStore, p model.ThrottlePolicy, clock security.Clock) *Throttle {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = model.DefaultThrottlePolicy.MaxAttempts
	}
	if p.Window <= 0 {
		p.Window = model.DefaultThrottlePolicy.Window
	}
	if p.Lockout <= 0 {
		p.Lockout = model.DefaultThrottlePolicy.Lockout
	}
	if clock == nil {
		clock = security.SystemClock{}
	}
	return &Throttle{store: store, policy: p, clock: clock}
}

// Policy returns the effective policy.
func (t *Throttle) Policy() model.ThrottlePolicy { return t.policy }

// Check rejects a locked key with rate_limited.  It must run before any
// credential work.
func (t *Throttle) Check(ctx context.Context, key ThrottleKey) error {
	a, err := t.store.Get(ctx, key.Identifier, key.Origin)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fail(CodeUnavailable, err)
	}
	now := t.clock.Now()
	if a.Locked(now) {
		return &Error{Code: CodeRateLimited, RetryAfter: a.LockedUntil.Sub(now)}
	}
	return nil
}

// Fail records one failed attempt and returns the resulting counter.
func (t *Throttle) Fail(ctx context.Context, key ThrottleKey) (model.LoginAttempt, error) {
	a, err := t.store.RecordFailure(ctx, key.Identifier, key.Origin, t.clock.Now(), t.policy)
	if err != nil {
		return model.LoginAttempt{}, fail(CodeUnavailable, err)
	}
	return a, nil
}

// Succeed clears the counter for key.
func (t *Throttle) Succeed(ctx context.Context, key ThrottleKey) error {
	if err := t.store.Delete(ctx, key.Identifier, key.Origin); err != nil {
		return fail(CodeUnavailable, err)
	}
	return nil
}

package model

import "time"

// LoginAttempt mirrors a row of `login_attempts`, keyed by the normalized
// identifier and the caller's origin address.  A row exists only while a
// key has failed attempts; a successful login deletes it.
type LoginAttempt struct {
    Identifier     string     // login_attempts.identifier
    Origin         string     // login_attempts.origin
    Attempts       int        // login_attempts.attempts
    FirstAttemptAt time.Time  // login_attempts.first_attempt_at
    LockedUntil    *time.Time // login_attempts.locked_until (nullable)
}

// Locked reports whether the key is locked at now.
func (a LoginAttempt) Locked(now time.Time) bool {
    return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// ThrottlePolicy configures the login throttle.  A key is locked for
// Lockout once it reaches MaxAttempts failures inside Window; the count
// starts over when more than Window has passed since the first failure.
type ThrottlePolicy struct {
    MaxAttempts int
    Window      time.Duration
    Lockout     time.Duration
}

// DefaultThrottlePolicy is 5 attempts per 15 minutes, then a 15 minute lock.
var DefaultThrottlePolicy = ThrottlePolicy{
    MaxAttempts: 5,
    Window:      15 * time.Minute,
    Lockout:     15 * time.Minute,
}

// Package security holds the cryptographic building blocks of the auth
// subsystem: password hashing, signed tokens and token identifiers.  Time
// and randomness are injected so callers can pin both in tests.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Clock supplies the current time.  Every expiry and window calculation in
// the auth subsystem goes through a Clock rather than time.Now.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// TokenIDBytes is the size of a refresh token id before hex encoding.
const TokenIDBytes = 16

// NewTokenID reads TokenIDBytes from r and returns them hex-encoded.  A nil
// reader falls back to crypto/rand.
func NewTokenID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, TokenIDBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read token id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashTokenID returns the SHA-256 hex digest of a token id.  Only the
// digest is persisted so that a leaked row cannot be replayed as a token.
func HashTokenID(jti string) string {
	sum := sha256.Sum256([]byte(jti))
	return hex.EncodeToString(sum[:])
}

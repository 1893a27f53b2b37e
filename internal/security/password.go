package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SchemePBKDF2 tags hashes produced by PasswordHasher.
	SchemePBKDF2 = "pbkdf2"
	// DefaultIterations is used when no iteration count is configured.
	DefaultIterations = 100_000
	// MaxIterations bounds per-request CPU; larger configured values are clamped.
	MaxIterations = 100_000

	saltLength = 16
	keyLength  = 32
)

// ClampIterations applies the default and the hard cap to n.
func ClampIterations(n int) int {
	if n <= 0 {
		return DefaultIterations
	}
	if n > MaxIterations {
		return MaxIterations
	}
	return n
}

// VerifyResult is the outcome of PasswordHasher.Verify.  NewHash is only
// set when NeedsUpgrade is true, so the caller can persist it together
// with the login.
type VerifyResult struct {
	Valid        bool
	NeedsUpgrade bool
	NewHash      string
}

// PasswordHasher hashes and verifies passwords.  New hashes always use the
// tagged PBKDF2-HMAC-SHA256 format
//
//    pbkdf2$<iterations>$<base64url salt>$<base64url key>
//
// while verification also accepts bare hex SHA-256 digests and bcrypt
// hashes left behind by earlier account imports.
type PasswordHasher struct {
	iterations int
	rand       io.Reader
}

// NewPasswordHasher returns a hasher using the clamped iteration count.  A
// nil reader means crypto/rand.
func NewPasswordHasher(iterations int, r io.Reader) *PasswordHasher {
	if r == nil {
		r = rand.Reader
	}
	return &PasswordHasher{iterations: ClampIterations(iterations), rand: r}
}

// Iterations returns the configured iteration count.
func (h *PasswordHasher) Iterations() int { return h.iterations }

// Hash derives a tagged hash with the configured iteration count.
func (h *PasswordHasher) Hash(password string) (string, error) {
	return h.HashWithIterations(password, h.iterations)
}

// HashWithIterations derives a tagged hash with a fresh salt.
func (h *PasswordHasher) HashWithIterations(password string, iterations int) (string, error) {
	iterations = ClampIterations(iterations)
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
	return strings.Join([]string{
		SchemePBKDF2,
		strconv.Itoa(iterations),
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	}, "$"), nil
}

// Verify checks password against stored.  An error is only returned when
// computing the upgraded hash fails; a mismatch or an unparseable hash is
// reported as Valid=false.
func (h *PasswordHasher) Verify(password, stored string) (VerifyResult, error) {
	switch {
	case stored == "":
		return VerifyResult{}, nil
	case strings.HasPrefix(stored, SchemePBKDF2+"$"):
		return h.verifyTagged(password, stored)
	case isBcrypt(stored):
		ok := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
		return h.result(ok, true, password)
	case isLegacyDigest(stored):
		sum := sha256.Sum256([]byte(password))
		got := hex.EncodeToString(sum[:])
		ok := constantTimeEqual([]byte(got), []byte(strings.ToLower(stored)))
		return h.result(ok, true, password)
	}
	return VerifyResult{}, nil
}

func (h *PasswordHasher) verifyTagged(password, stored string) (VerifyResult, error) {
	iterations, salt, expected, ok := parseTagged(stored)
	if !ok {
		return VerifyResult{}, nil
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	if !constantTimeEqual(derived, expected) {
		return VerifyResult{}, nil
	}
	return h.result(true, h.iterations > iterations, password)
}

// result builds a VerifyResult, rehashing password when a valid match
// needs an upgrade.  Legacy schemes always need one.
func (h *PasswordHasher) result(valid, upgrade bool, password string) (VerifyResult, error) {
	if !valid {
		return VerifyResult{}, nil
	}
	if !upgrade {
		return VerifyResult{Valid: true}, nil
	}
	newHash, err := h.Hash(password)
	if err != nil {
		return VerifyResult{Valid: true}, err
	}
	return VerifyResult{Valid: true, NeedsUpgrade: true, NewHash: newHash}, nil
}

func parseTagged(stored string) (iterations int, salt, key []byte, ok bool) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != SchemePBKDF2 {
		return 0, nil, nil, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n <= 0 {
		return 0, nil, nil, false
	}
	salt, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, false
	}
	key, err = base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, false
	}
	return n, salt, key, true
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func isLegacyDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// constantTimeEqual compares equal-length buffers in constant time.  Buffers
// of different length are unequal without further work.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

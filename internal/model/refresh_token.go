package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table.  The raw
// jti carried inside the signed refresh token is never stored; only its
// SHA-256 hex digest.  Rows are revoked at most once and never deleted so
// that rotation history stays available for audit.
//
// Fields:
//  ID         – primary key identifier.
//  JTIHash    – SHA-256 hex digest of the token id (unique).
//  UserID     – owner of the token.
//  IssuedAt   – when the token was issued.
//  ExpiresAt  – expiration timestamp of the token.
//  RevokedAt  – when the token was revoked (nil while active).
//  ReplacedBy – digest of the successor jti once rotated (nil otherwise).
type RefreshToken struct {
    ID         uint64     // refresh_tokens.id
    JTIHash    string     // refresh_tokens.jti_hash
    UserID     uint64     // refresh_tokens.user_id
    IssuedAt   time.Time  // refresh_tokens.issued_at
    ExpiresAt  time.Time  // refresh_tokens.expires_at
    RevokedAt  *time.Time // refresh_tokens.revoked_at (nullable)
    ReplacedBy *string    // refresh_tokens.replaced_by (nullable)
}

// Usable reports whether the record may authorize a refresh at now.
func (t RefreshToken) Usable(now time.Time) bool {
    return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

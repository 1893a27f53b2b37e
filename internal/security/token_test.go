package security

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-min-32-bytes-long!"

func fixedClock(t time.Time) ClockFunc { return func() time.Time { return t } }

func TestTokenService_SignVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewTokenService(testSecret, fixedClock(now), 0, 0)

	in := Claims{"sub": "42", "club": "rowing"}
	signed, err := svc.Sign(in, time.Hour, TokenAccess)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !signed.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", signed.ExpiresAt, now.Add(time.Hour))
	}

	got, err := svc.Verify(signed.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	for k, v := range in {
		if got[k] != v {
			t.Errorf("claim %q = %v, want %v", k, got[k], v)
		}
	}
	if got["iat"] != float64(now.Unix()) {
		t.Errorf("iat = %v, want %d", got["iat"], now.Unix())
	}
	if got["exp"] != float64(now.Add(time.Hour).Unix()) {
		t.Errorf("exp = %v, want %d", got["exp"], now.Add(time.Hour).Unix())
	}
	if got.Type() != TokenAccess {
		t.Errorf("typ = %v, want access", got.Type())
	}
	if len(got) != len(in)+3 {
		t.Errorf("claims = %v, want input plus iat/exp/typ", got)
	}
}

func TestTokenService_WireFormat(t *testing.T) {
	svc := NewTokenService(testSecret, fixedClock(time.Unix(1_700_000_000, 0)), 0, 0)
	signed, err := svc.IssueAccess(7)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	parts := strings.Split(signed.Token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	for _, p := range parts {
		if strings.ContainsAny(p, "=+/") {
			t.Errorf("segment %q is not unpadded base64url", p)
		}
	}
	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if string(header) != `{"alg":"HS256","typ":"JWT"}` {
		t.Errorf("header = %s", header)
	}
	var payload map[string]any
	raw, _ := base64.RawURLEncoding.DecodeString(parts[1])
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, k := range []string{"sub", "iat", "exp", "typ"} {
		if _, ok := payload[k]; !ok {
			t.Errorf("payload missing %q", k)
		}
	}
	if _, ok := payload["jti"]; ok {
		t.Error("access token must not carry jti")
	}
}

func TestTokenService_Tampering(t *testing.T) {
	svc := NewTokenService(testSecret, nil, 0, 0)
	signed, err := svc.IssueRefresh(9, "abc")
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}
	parts := strings.Split(signed.Token, ".")

	// Re-encoded payload with a different subject keeps the old signature.
	forged, _ := json.Marshal(map[string]any{"sub": "1", "jti": "abc", "typ": "refresh", "exp": time.Now().Add(time.Hour).Unix()})
	forgedTok := parts[0] + "." + base64.RawURLEncoding.EncodeToString(forged) + "." + parts[2]
	if _, err := svc.Verify(forgedTok); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("forged payload: err = %v, want ErrInvalidSignature", err)
	}

	// Flip the first byte of the signature.
	sig, _ := base64.RawURLEncoding.DecodeString(parts[2])
	sig[0] ^= 0xff
	badSig := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sig)
	if _, err := svc.Verify(badSig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("flipped signature: err = %v, want ErrInvalidSignature", err)
	}

	// Every single-byte change in payload or signature is rejected.
	head := len(parts[0]) + 1
	for i := head; i < len(signed.Token); i++ {
		if signed.Token[i] == '.' {
			continue
		}
		b := []byte(signed.Token)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		if bytes.Equal(b, []byte(signed.Token)) {
			continue
		}
		if _, err := svc.Verify(string(b)); err == nil && i < len(signed.Token)-1 {
			t.Errorf("tampered byte %d accepted", i)
		}
	}

	// A different secret never verifies.
	other := NewTokenService("another-secret-key-min-32-bytes-long", nil, 0, 0)
	if _, err := other.Verify(signed.Token); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("other secret: err = %v, want ErrInvalidSignature", err)
	}
}

func TestTokenService_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := issued
	svc := NewTokenService(testSecret, ClockFunc(func() time.Time { return now }), 0, 0)

	signed, err := svc.IssueAccess(1)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	now = issued.Add(14 * time.Minute)
	if _, err := svc.Verify(signed.Token); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}
	now = issued.Add(16 * time.Minute)
	if _, err := svc.Verify(signed.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify() after expiry err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := issued
	svc := NewTokenService(testSecret, ClockFunc(func() time.Time { return now }), 0, 0)

	signed, err := svc.IssueAccess(1)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}
	exp := signed.ExpiresAt

	for _, tc := range []struct {
		at      time.Time
		expired bool
	}{
		{exp.Add(-time.Second), false},
		{exp, false},
		{exp.Add(999 * time.Millisecond), false},
		{exp.Add(time.Second), true},
	} {
		now = tc.at
		_, err := svc.Verify(signed.Token)
		if got := errors.Is(err, ErrTokenExpired); got != tc.expired {
			t.Errorf("Verify() at exp%+v: err = %v, want expired=%v", tc.at.Sub(exp), err, tc.expired)
		}
	}
}

func TestTokenService_Malformed(t *testing.T) {
	svc := NewTokenService(testSecret, nil, 0, 0)
	cases := []string{
		"",
		"abc",
		"a.b",
		"a.b.c.d",
		"!!!.???.###",
		base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
			base64.RawURLEncoding.EncodeToString([]byte(`not json`)) + ".c2ln",
	}
	for _, raw := range cases {
		if _, err := svc.Verify(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidToken", raw, err)
		}
	}
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	svc := NewTokenService(testSecret, nil, 0, 0)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"1","typ":"access"}`))
	if _, err := svc.Verify(header + "." + payload + "."); err == nil {
		t.Fatal("alg=none token accepted")
	}
}

func TestTokenService_VerifyType(t *testing.T) {
	svc := NewTokenService(testSecret, nil, 0, 0)
	access, _ := svc.IssueAccess(5)
	refresh, _ := svc.IssueRefresh(5, "feed")

	if _, err := svc.VerifyType(access.Token, TokenRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access as refresh: err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.VerifyType(refresh.Token, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh as access: err = %v, want ErrInvalidToken", err)
	}
	claims, err := svc.VerifyType(refresh.Token, TokenRefresh)
	if err != nil {
		t.Fatalf("VerifyType(refresh) error = %v", err)
	}
	if claims.JTI() != "feed" {
		t.Errorf("jti = %q, want feed", claims.JTI())
	}
	if id, _ := claims.UserID(); id != 5 {
		t.Errorf("UserID = %d, want 5", id)
	}

	noSub, _ := svc.Sign(Claims{}, time.Minute, TokenAccess)
	if _, err := svc.VerifyType(noSub.Token, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("missing sub: err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_MissingSecret(t *testing.T) {
	svc := NewTokenService("", nil, 0, 0)
	if _, err := svc.IssueAccess(1); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Sign err = %v, want ErrMissingSecret", err)
	}
	if _, err := svc.Verify("a.b.c"); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Verify err = %v, want ErrMissingSecret", err)
	}
}

func TestClaims_NumericSubject(t *testing.T) {
	c := Claims{"sub": float64(17)}
	if c.Subject() != "17" {
		t.Errorf("Subject() = %q, want 17", c.Subject())
	}
	if id, err := c.UserID(); err != nil || id != 17 {
		t.Errorf("UserID() = %d, %v", id, err)
	}
}

func TestNewTokenID(t *testing.T) {
	id, err := NewTokenID(bytes.NewReader(bytes.Repeat([]byte{1}, 16)))
	if err != nil {
		t.Fatalf("NewTokenID() error = %v", err)
	}
	if id != strings.Repeat("01", 16) {
		t.Errorf("NewTokenID() = %q", id)
	}
	if _, err := NewTokenID(bytes.NewReader([]byte{1, 2})); err == nil {
		t.Error("short reader should fail")
	}
	if HashTokenID(id) == id || len(HashTokenID(id)) != 64 {
		t.Errorf("HashTokenID(%q) = %q", id, HashTokenID(id))
	}
}

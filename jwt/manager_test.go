package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newHSManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	cfg.SigningMethod = MethodHS256
	cfg.PrivateKey = testSecret
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = time.Minute
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: testSecret}},
		{"short secret", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"negative leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: -time.Second}},
		{"future iat window too wide", Config{AccessTTL: time.Minute, PrivateKey: testSecret, MaxFutureIAT: 48 * time.Hour}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: testSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}

	if _, err := NewManager(Config{AccessTTL: time.Minute, PrivateKey: testSecret}); err != nil {
		t.Fatalf("empty signing method should default to hs256: %v", err)
	}
}

func TestCreateAndParseAccess(t *testing.T) {
	m := newHSManager(t, Config{Issuer: "docportal", Audience: "authenticated"})

	token, exp, err := m.CreateAccess("u1", "alice@example.com", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if until := time.Until(exp); until <= 0 || until > time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID() != "u1" || claims.Email != "alice@example.com" || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Role != "authenticated" {
		t.Fatalf("expected authenticated role claim, got %q", claims.Role)
	}
	if !claims.Expiry().Equal(exp.Truncate(time.Second)) {
		t.Fatalf("expiry mismatch: %v vs %v", claims.Expiry(), exp)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m := newHSManager(t, Config{})

	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}

	unsigned, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := m.ParseAccess(unsigned); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestParseAccessRejectsForeignSecret(t *testing.T) {
	m := newHSManager(t, Config{})
	other, err := NewManager(Config{AccessTTL: time.Minute, PrivateKey: []byte("fedcba9876543210fedcba9876543210")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := other.CreateAccess("u1", "a@example.com", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	m := newHSManager(t, Config{
		Issuer:   "docportal",
		Audience: "authenticated",
		Leeway:   30 * time.Second,
	})

	sign := func(issuer, audience string, exp time.Duration) string {
		claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(exp)),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.ParseAccess(sign("other", "authenticated", time.Minute)); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.ParseAccess(sign("docportal", "other", time.Minute)); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.ParseAccess(sign("docportal", "authenticated", -15*time.Second)); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	_, err := m.ParseAccess(sign("docportal", "authenticated", -2*time.Minute))
	if err == nil {
		t.Fatal("expected expired token to fail")
	}
	if !IsExpired(err) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestParseAccessRejectsFutureIssuedAt(t *testing.T) {
	m := newHSManager(t, Config{MaxFutureIAT: time.Minute})
	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected far-future iat to fail")
	}
}

func TestParseAccessRequiresSubject(t *testing.T) {
	m := newHSManager(t, Config{})
	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected missing subject to fail")
	}
}

func TestPeekClaims(t *testing.T) {
	m := newHSManager(t, Config{})
	token, exp, err := m.CreateAccess("u7", "bob@example.com", "s7")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := PeekClaims(token)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if claims.UserID() != "u7" || claims.Email != "bob@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Expiry().Unix() != exp.Unix() {
		t.Fatalf("expiry mismatch")
	}

	// Signature is not checked.
	parts := strings.Split(token, ".")
	if _, err := PeekClaims(parts[0] + "." + parts[1] + ".AAAA"); err != nil {
		t.Fatalf("expected unverified decode to succeed: %v", err)
	}

	if _, err := PeekClaims("not-a-token"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

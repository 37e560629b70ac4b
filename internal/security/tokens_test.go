package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chabaqa/backend/internal/config"
	"chabaqa/backend/internal/user/domain"
)

var testPrincipal = Principal{ID: "u1", Email: "a@b.com", Role: domain.RoleCreator}

func TestTokenProvider_IssueAndVerifyAccess(t *testing.T) {
	p := NewTestHMACProvider()

	access, jti, exp, err := p.IssueAccess("s1", testPrincipal)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" || jti == "" {
		t.Fatal("access token or jti empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	got, err := p.VerifyAccess(access)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if got != testPrincipal {
		t.Errorf("VerifyAccess = %+v, want %+v", got, testPrincipal)
	}

	_, sid, err := p.VerifyAccessSession(access)
	if err != nil || sid != "s1" {
		t.Errorf("VerifyAccessSession sid = %q, err = %v", sid, err)
	}
}

func TestTokenProvider_IssueAndVerifyRefresh_RS256(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if p.Alg() != "RS256" {
		t.Errorf("Alg = %q, want RS256", p.Alg())
	}
	refresh, jti, _, err := p.IssueRefresh("s1", testPrincipal)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	info, err := p.VerifyRefresh(refresh)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if info.SessionID != "s1" || info.JTI != jti || info.Principal != testPrincipal {
		t.Errorf("VerifyRefresh = %+v", info)
	}
}

func TestTokenProvider_ES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := NewTokenProvider(key, &key.PublicKey, "iss", "aud", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	tok, _, _, err := p.IssueAccess("s1", testPrincipal)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.VerifyAccess(tok); err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
}

func TestTokenProvider_TypeConfusion(t *testing.T) {
	p := NewTestHMACProvider()
	access, _, _, _ := p.IssueAccess("s1", testPrincipal)
	refresh, _, _, _ := p.IssueRefresh("s1", testPrincipal)

	if _, err := p.VerifyRefresh(access); err != ErrInvalidToken {
		t.Errorf("access as refresh: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.VerifyAccess(refresh); err != ErrInvalidToken {
		t.Errorf("refresh as access: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	p := NewTestHMACProvider().WithClock(func() time.Time { return clock })
	tok, _, exp, err := p.IssueAccess("s1", testPrincipal)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	clock = exp.Add(-time.Second)
	if _, err := p.VerifyAccess(tok); err != nil {
		t.Fatalf("one second before expiry: %v", err)
	}
	clock = exp
	if _, err := p.VerifyAccess(tok); err != ErrInvalidToken {
		t.Errorf("at expiry: want ErrInvalidToken, got %v", err)
	}
	clock = exp.Add(time.Hour)
	if _, err := p.VerifyAccess(tok); err != ErrInvalidToken {
		t.Errorf("after expiry: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_InvalidInputs(t *testing.T) {
	p := NewTestHMACProvider()
	good, _, _, _ := p.IssueAccess("s1", testPrincipal)

	other, err := NewHMACTokenProvider([]byte(strings.Repeat("x", 32)), "test-issuer", "test-audience", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewHMACTokenProvider: %v", err)
	}
	foreign, _, _, _ := other.IssueAccess("s1", testPrincipal)

	wrongAud, _ := NewHMACTokenProvider([]byte(testSecret), "test-issuer", "elsewhere", time.Minute, time.Hour)
	wrongAudTok, _, _, _ := wrongAud.IssueAccess("s1", testPrincipal)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "test-issuer", Audience: jwt.ClaimStrings{"test-audience"}, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "admin",
		Type:             "access",
	})
	noneTok, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"empty":      "",
		"garbage":    "invalid-token",
		"bad sig":    foreign,
		"wrong aud":  wrongAudTok,
		"alg none":   noneTok,
		"tampered":   good[:len(good)-2] + "xx",
		"three dots": "a.b.c",
	}
	for name, tok := range cases {
		if _, err := p.VerifyAccess(tok); err != ErrInvalidToken {
			t.Errorf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenProvider_UnknownRoleRejected(t *testing.T) {
	p := NewTestHMACProvider()
	tok, _, _, err := p.IssueAccess("s1", Principal{ID: "u1", Email: "a@b.com", Role: "owner"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.VerifyAccess(tok); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestNewHMACTokenProvider_WeakSecret(t *testing.T) {
	if _, err := NewHMACTokenProvider([]byte("short"), "i", "a", time.Minute, time.Hour); err != ErrWeakSecret {
		t.Errorf("want ErrWeakSecret, got %v", err)
	}
}

func TestTokenProvider_VerifyOnlyCannotIssue(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	p, err := NewTokenProvider(nil, pub, "test-issuer", "test-audience", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	if _, _, _, err := p.IssueAccess("s1", testPrincipal); err != ErrNoSigningKey {
		t.Errorf("want ErrNoSigningKey, got %v", err)
	}

	signer, _ := NewTestTokenProvider()
	tok, _, _, _ := signer.IssueAccess("s1", testPrincipal)
	if _, err := p.VerifyAccess(tok); err != nil {
		t.Errorf("verify-only provider should accept signer's token: %v", err)
	}
}

func TestProviderFromConfig(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret, JWTIssuer: "i", JWTAudience: "a"}
	p, err := ProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("ProviderFromConfig: %v", err)
	}
	if p.Alg() != "HS256" {
		t.Errorf("Alg = %q, want HS256", p.Alg())
	}
	if p.AccessTTL() != 7*24*time.Hour || p.RefreshTTL() != 30*24*time.Hour {
		t.Errorf("TTLs = %v/%v", p.AccessTTL(), p.RefreshTTL())
	}

	cfg = &config.Config{JWTPublicKey: testPublicKeyPEM, JWTPrivateKey: testPrivateKeyPEM}
	p, err = ProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("ProviderFromConfig keys: %v", err)
	}
	if p.Alg() != "RS256" {
		t.Errorf("Alg = %q, want RS256", p.Alg())
	}

	if _, err := ProviderFromConfig(&config.Config{}); err != ErrNoKeyMaterial {
		t.Errorf("want ErrNoKeyMaterial, got %v", err)
	}
}

package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func hs256Manager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "platauth-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestSignAndParseRoundTrip(t *testing.T) {
	m := hs256Manager(t)

	token, err := m.Sign(Claims{
		Role:      "SUPPORT",
		SessionID: "sess-1",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject: "acct-1",
		},
	}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "acct-1" || claims.Role != "SUPPORT" || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != Audience {
		t.Fatalf("expected audience %q, got %v", Audience, claims.Audience)
	}
	if claims.TenantID != "" || claims.ActAsUserID != "" {
		t.Fatal("ordinary credential must not carry impersonation claims")
	}
}

func TestImpersonationClaims(t *testing.T) {
	m := hs256Manager(t)

	token, err := m.Sign(Claims{
		Role:        "SUPPORT",
		SessionID:   "imp-1",
		TenantID:    "tenant-9",
		ActAsUserID: "user-42",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject: "acct-1",
		},
	}, 4*time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.TenantID != "tenant-9" || claims.ActAsUserID != "user-42" {
		t.Fatalf("impersonation claims missing: %+v", claims)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := hs256Manager(t)

	token, err := m.Sign(Claims{
		SessionID:        "sess-1",
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "acct-1"},
	}, time.Millisecond)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsMissingSubjectOrSession(t *testing.T) {
	m := hs256Manager(t)

	token, err := m.Sign(Claims{SessionID: "sess-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token without subject to fail")
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	m := hs256Manager(t)
	other, err := NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "platauth-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := other.Sign(Claims{
		SessionID:        "sess-1",
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "acct-1"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected foreign-key token to fail")
	}
}

func TestEd25519SignAndParse(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}

	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.Sign(Claims{
		SessionID:        "sess-1",
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "acct-1"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

package internal

import (
	"strings"
	"testing"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}
	secret, err := NewSessionSecret()
	if err != nil {
		t.Fatalf("NewSessionSecret failed: %v", err)
	}

	token, err := EncodeSessionToken(id.String(), secret)
	if err != nil {
		t.Fatalf("EncodeSessionToken failed: %v", err)
	}

	gotSID, gotSecret, err := DecodeSessionToken(token)
	if err != nil {
		t.Fatalf("DecodeSessionToken failed: %v", err)
	}
	if gotSID != id.String() || gotSecret != secret {
		t.Fatal("session token round trip mismatch")
	}
}

func TestHashSessionSecretSaltedBySessionID(t *testing.T) {
	secret, _ := NewSessionSecret()
	h1 := HashSessionSecret("sess-1", secret)
	h2 := HashSessionSecret("sess-2", secret)
	if h1 == h2 {
		t.Fatal("expected different hashes for different session ids")
	}
}

func TestOneTimeTokenRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	token, id, err := MintOneTime(key)
	if err != nil {
		t.Fatalf("MintOneTime failed: %v", err)
	}

	gotID, ok := ParseOneTime(key, token)
	if !ok || gotID != id {
		t.Fatalf("ParseOneTime failed: ok=%v id=%q want %q", ok, gotID, id)
	}
}

func TestOneTimeTokenRejectsForgedAndForeignKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("ffffffffffffffffffffffffffffffff")

	token, _, err := MintOneTime(key)
	if err != nil {
		t.Fatalf("MintOneTime failed: %v", err)
	}

	if _, ok := ParseOneTime(other, token); ok {
		t.Fatal("token parsed under foreign key")
	}
	if _, ok := ParseOneTime(key, token[:len(token)-2]); ok {
		t.Fatal("truncated token parsed")
	}
	if _, ok := ParseOneTime(key, "not-base64!!"); ok {
		t.Fatal("garbage token parsed")
	}
}

func TestNewBackupCodesUniqueAndFormatted(t *testing.T) {
	codes, err := NewBackupCodes(8)
	if err != nil {
		t.Fatalf("NewBackupCodes failed: %v", err)
	}
	if len(codes) != 8 {
		t.Fatalf("expected 8 codes, got %d", len(codes))
	}

	seen := make(map[string]struct{})
	for _, code := range codes {
		if len(code) != 11 || code[5] != '-' {
			t.Fatalf("unexpected code format %q", code)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q in batch", code)
		}
		seen[code] = struct{}{}
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	want := CanonicalizeBackupCode("AB12C-DE34F")
	for _, in := range []string{" ab12c-de34f ", "AB12C DE34F", "ab12cde34f"} {
		if got := CanonicalizeBackupCode(in); got != want {
			t.Fatalf("CanonicalizeBackupCode(%q) = %q, want %q", in, got, want)
		}
	}
	if strings.Contains(want, "-") {
		t.Fatal("canonical form must not contain separators")
	}
}

func TestBackupCodeHashSaltedByAccount(t *testing.T) {
	c := CanonicalizeBackupCode("AB12C-DE34F")
	if BackupCodeHash("acct-1", c) == BackupCodeHash("acct-2", c) {
		t.Fatal("expected different hashes for different accounts")
	}
}

package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ID is a 16-byte random identifier used for sessions and one-time
// tokens. The string form is unpadded base64url.
type ID [16]byte

const (
	sessionSecretSize   = 32
	sessionTokenRawSize = 48
	oneTimeMACSize      = 32
	oneTimeRawSize      = 48
)

// NewID returns a fresh random ID.
func NewID() (ID, error) {
	var id ID
	_, err := rand.Read(id[:])
	return id, err
}

func (id ID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseID decodes the base64url string form of an [ID].
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid id size")
	}
	copy(id[:], raw)
	return id, nil
}

// NewSessionSecret returns the random half of a session credential.
func NewSessionSecret() ([sessionSecretSize]byte, error) {
	var secret [sessionSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSessionSecret derives the only persisted form of a session
// credential. The session id acts as a per-session salt, so equal
// secrets on different sessions never produce equal hashes.
func HashSessionSecret(sessionID string, secret [sessionSecretSize]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write(secret[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeSessionToken packs a session id and secret into the opaque
// bearer-side credential string.
func EncodeSessionToken(sessionID string, secret [sessionSecretSize]byte) (string, error) {
	sid, err := ParseID(sessionID)
	if err != nil {
		return "", err
	}

	var raw [sessionTokenRawSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeSessionToken splits an opaque session credential back into its
// session id and secret.
func DecodeSessionToken(token string) (string, [sessionSecretSize]byte, error) {
	var secret [sessionSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != sessionTokenRawSize {
		return "", secret, errors.New("invalid session token size")
	}

	var sid ID
	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])
	return sid.String(), secret, nil
}

// HashBinding hashes a request-binding value (IP, user agent) for
// storage and comparison. Empty input hashes to the zero value so unset
// bindings compare trivially.
func HashBinding(value string) [32]byte {
	var out [32]byte
	if value == "" {
		return out
	}
	sum := sha256.Sum256([]byte(value))
	copy(out[:], sum[:])
	return out
}

// MintOneTime issues an HMAC-signed one-time token. The returned id is
// the storage key; the token is the value handed to the client. A token
// only parses under the same key, so forged or truncated values are
// rejected before any store lookup.
func MintOneTime(key []byte) (token string, id string, err error) {
	raw, err := NewID()
	if err != nil {
		return "", "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(raw[:])

	var packed [oneTimeRawSize]byte
	copy(packed[:len(raw)], raw[:])
	copy(packed[len(raw):], mac.Sum(nil)[:oneTimeMACSize])
	return base64.RawURLEncoding.EncodeToString(packed[:]), raw.String(), nil
}

// ParseOneTime verifies a one-time token's HMAC and returns its storage
// id. The comparison is constant-time.
func ParseOneTime(key []byte, token string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != oneTimeRawSize {
		return "", false
	}

	var id ID
	copy(id[:], raw[:len(id)])

	mac := hmac.New(sha256.New, key)
	mac.Write(id[:])
	if !hmac.Equal(raw[len(id):], mac.Sum(nil)[:oneTimeMACSize]) {
		return "", false
	}
	return id.String(), true
}

const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"

// NewBackupCodes generates count mutually unique recovery codes in the
// form XXXXX-XXXXX. The alphabet omits easily confused letters.
func NewBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		return nil, errors.New("invalid backup code count")
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := newBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func newBackupCode() (string, error) {
	var raw [10]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(11)
	for i, v := range raw {
		if i == 5 {
			b.WriteByte('-')
		}
		b.WriteByte(backupCodeAlphabet[int(v)%len(backupCodeAlphabet)])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode normalizes user input before hashing: trim,
// uppercase, separators removed.
func CanonicalizeBackupCode(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	trimmed = strings.ReplaceAll(trimmed, "-", "")
	return strings.ReplaceAll(trimmed, " ", "")
}

// BackupCodeHash derives the persisted form of a backup code, salted by
// the owning account id.
func BackupCodeHash(accountID, canonicalCode string) [32]byte {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0})
	h.Write([]byte(canonicalCode))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

package session

import (
	"encoding/json"
	"time"
)

// Session is the live record of a platform console login. Only a salted
// hash of the session secret is stored; the plaintext secret exists solely
// in the token handed to the client.
//
// Records are stored as JSON rather than a binary frame so the revocation
// scripts can decode, patch, and re-encode them inside Redis.
type Session struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	TokenHash string `json:"token_hash"`

	MFARequired   bool  `json:"mfa_required"`
	MFAVerified   bool  `json:"mfa_verified"`
	MFAVerifiedAt int64 `json:"mfa_verified_at,omitempty"`

	Revoked       bool   `json:"revoked"`
	RevokedReason string `json:"revoked_reason,omitempty"`
	RevokedBy     string `json:"revoked_by,omitempty"`
	RevokedAt     int64  `json:"revoked_at,omitempty"`

	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	IPHash     string `json:"ip_hash,omitempty"`
	UAHash     string `json:"ua_hash,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`

	CreatedAt      int64 `json:"created_at"`
	ExpiresAt      int64 `json:"expires_at"`
	LastActivityAt int64 `json:"last_activity_at,omitempty"`
}

// Usable reports whether the session may authorize requests right now:
// not revoked, not expired, and past the MFA step when one was required.
func (s *Session) Usable(now time.Time) bool {
	if s == nil || s.Revoked {
		return false
	}
	if now.Unix() > s.ExpiresAt {
		return false
	}
	if s.MFARequired && !s.MFAVerified {
		return false
	}
	return true
}

// Expired reports whether the session is past its absolute lifetime.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() > s.ExpiresAt
}

func Encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

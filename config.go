package platauth

import (
	"errors"
	"time"
)

// Config carries all engine tuning. Zero values are filled by
// defaultConfig; [Builder.WithConfig] replaces the whole struct.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Login         LoginConfig
	MFA           MFAConfig
	Password      PasswordConfig
	Impersonation ImpersonationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// JWTConfig configures bearer token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// SessionConfig configures the Redis session store.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

// LoginConfig configures the password step of login.
type LoginConfig struct {
	// MaxFailedAttempts locks the account when reached.
	MaxFailedAttempts int
	LockDuration      time.Duration

	// ThrottleEnabled adds a Redis fixed-window throttle in front of the
	// per-account lockout, counting failures per email and per caller IP.
	ThrottleEnabled     bool
	ThrottleMaxAttempts int
	ThrottleWindow      time.Duration
}

// MFAConfig configures the TOTP authenticator, backup codes, and the
// one-time temp token bridging the password and MFA steps.
type MFAConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string

	TempTokenTTL    time.Duration
	BackupCodeCount int

	// TempTokenKey signs the opaque one-time MFA token. Must be at least
	// 32 bytes.
	TempTokenKey []byte
}

// PasswordConfig carries argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin rehashes legacy bcrypt credentials after a
	// successful login.
	UpgradeOnLogin bool
}

// ImpersonationConfig bounds impersonation sessions.
type ImpersonationConfig struct {
	MaxDuration time.Duration
	// MinReasonLength applies to the trimmed justification text.
	MinReasonLength int
	HistoryLimit    int
}

// AuditConfig configures the best-effort mirror dispatcher. The mandatory
// synchronous ledger write is not configurable.
type AuditConfig struct {
	MirrorEnabled    bool
	MirrorBufferSize int
	MirrorDropIfFull bool

	// QueryMaxLimit caps QueryAudit page sizes.
	QueryMaxLimit int
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     10 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "platauth",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ps",
			Lifetime:    12 * time.Hour,
		},
		Login: LoginConfig{
			MaxFailedAttempts:   5,
			LockDuration:        30 * time.Minute,
			ThrottleEnabled:     true,
			ThrottleMaxAttempts: 20,
			ThrottleWindow:      5 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer:          "platform-console",
			Digits:          6,
			Period:          30,
			Skew:            1,
			Algorithm:       "SHA1",
			TempTokenTTL:    5 * time.Minute,
			BackupCodeCount: 8,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Impersonation: ImpersonationConfig{
			MaxDuration:     4 * time.Hour,
			MinReasonLength: 10,
			HistoryLimit:    50,
		},
		Audit: AuditConfig{
			MirrorEnabled:    false,
			MirrorBufferSize: 256,
			MirrorDropIfFull: true,
			QueryMaxLimit:    100,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.MFA.TempTokenKey = cloneBytes(cfg.MFA.TempTokenKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the parts of the config the engine cannot default its
// way around.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session.Lifetime must be positive")
	}
	if c.Login.MaxFailedAttempts <= 0 {
		return errors.New("Login.MaxFailedAttempts must be positive")
	}
	if c.Login.LockDuration <= 0 {
		return errors.New("Login.LockDuration must be positive")
	}
	if c.Login.ThrottleEnabled && (c.Login.ThrottleMaxAttempts <= 0 || c.Login.ThrottleWindow <= 0) {
		return errors.New("Login throttle requires positive attempts and window")
	}
	if c.MFA.Digits < 6 || c.MFA.Digits > 8 {
		return errors.New("MFA.Digits must be between 6 and 8")
	}
	if c.MFA.Period <= 0 {
		return errors.New("MFA.Period must be positive")
	}
	if c.MFA.Skew < 0 {
		return errors.New("MFA.Skew must not be negative")
	}
	if c.MFA.TempTokenTTL <= 0 {
		return errors.New("MFA.TempTokenTTL must be positive")
	}
	if len(c.MFA.TempTokenKey) < 32 {
		return errors.New("MFA.TempTokenKey must be at least 32 bytes")
	}
	if c.Impersonation.MaxDuration <= 0 {
		return errors.New("Impersonation.MaxDuration must be positive")
	}
	if c.Impersonation.MinReasonLength <= 0 {
		return errors.New("Impersonation.MinReasonLength must be positive")
	}
	return nil
}

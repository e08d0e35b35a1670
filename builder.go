package platauth

import (
	"errors"

	internalaudit "github.com/venn-labs/platauth/internal/audit"
	"github.com/venn-labs/platauth/internal/rate"
	"github.com/venn-labs/platauth/internal/stores"
	"github.com/venn-labs/platauth/jwt"
	"github.com/venn-labs/platauth/password"
	"github.com/venn-labs/platauth/permission"
	"github.com/venn-labs/platauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	registry *permission.Registry

	accounts   AccountProvider
	directory  DirectoryProvider
	auditStore AuditStore
	impStore   ImpersonationStore
	mirrorSink AuditSink

	built bool
}

// New creates a Builder seeded with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions and temp MFA tokens.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRegistry overrides the role-permission registry. When unset, the
// built-in [permission.Default] registry is used.
func (b *Builder) WithRegistry(reg *permission.Registry) *Builder {
	b.registry = reg
	return b
}

// WithAccountProvider sets the platform account backend.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithDirectoryProvider sets the tenant user directory used to resolve
// impersonation targets.
func (b *Builder) WithDirectoryProvider(p DirectoryProvider) *Builder {
	b.directory = p
	return b
}

// WithAuditStore sets the durable audit ledger. Required.
func (b *Builder) WithAuditStore(s AuditStore) *Builder {
	b.auditStore = s
	return b
}

// WithImpersonationStore sets the impersonation session store. Required.
func (b *Builder) WithImpersonationStore(s ImpersonationStore) *Builder {
	b.impStore = s
	return b
}

// WithAuditMirror enables the best-effort mirror and routes events to sink.
func (b *Builder) WithAuditMirror(sink AuditSink) *Builder {
	b.config.Audit.MirrorEnabled = true
	b.mirrorSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}
	if b.directory == nil {
		return nil, errors.New("directory provider required")
	}
	if b.auditStore == nil {
		return nil, errors.New("audit store required")
	}
	if b.impStore == nil {
		return nil, errors.New("impersonation store required")
	}

	registry := b.registry
	if registry == nil {
		registry = permission.Default()
	}

	engine := &Engine{
		config:       cfg,
		registry:     registry,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		tempMFAStore: stores.NewTempMFAStore(b.redis, ""),
		auditStore:   b.auditStore,
		impStore:     b.impStore,
		accounts:     b.accounts,
		directory:    b.directory,
		totp:         newTOTPManager(cfg.MFA),
		metrics:      NewMetrics(cfg.Metrics),
	}

	if cfg.Login.ThrottleEnabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.Login.ThrottleMaxAttempts,
			Window:      cfg.Login.ThrottleWindow,
			PerIP:       true,
		})
	}

	engine.mirror = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.MirrorEnabled,
		BufferSize: cfg.Audit.MirrorBufferSize,
		DropIfFull: cfg.Audit.MirrorDropIfFull,
	}, b.mirrorSink)

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true
	return engine, nil
}

package platauth

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	internalaudit "github.com/venn-labs/platauth/internal/audit"
	"github.com/venn-labs/platauth/internal/rate"
	"github.com/venn-labs/platauth/internal/stores"
	"github.com/venn-labs/platauth/jwt"
	"github.com/venn-labs/platauth/password"
	"github.com/venn-labs/platauth/permission"
	"github.com/venn-labs/platauth/session"
)

// Engine is the authorization and session-security core of the platform
// console. Construct it with [New]; instances are immutable after Build.
type Engine struct {
	config       Config
	registry     *permission.Registry
	sessionStore *session.Store
	tempMFAStore *stores.TempMFAStore
	auditStore   AuditStore
	impStore     ImpersonationStore
	accounts     AccountProvider
	directory    DirectoryProvider
	hasher       *password.Hasher
	limiter      *rate.Limiter
	totp         *totpManager
	jwtManager   *jwt.Manager
	mirror       *internalaudit.Dispatcher
	metrics      *Metrics
}

// Close flushes and stops the audit mirror dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mirror != nil {
		e.mirror.Close()
	}
}

// Registry exposes the frozen permission registry for guard middleware.
func (e *Engine) Registry() *permission.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// MirrorDropped reports how many mirror events were dropped under pressure.
func (e *Engine) MirrorDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mirror.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// appendAudit performs the mandatory synchronous ledger write and, on
// success, mirrors the entry to the best-effort dispatcher. A ledger
// failure is returned to the caller so the audited operation fails with it.
func (e *Engine) appendAudit(ctx context.Context, entry *AuditEntry) error {
	if e.auditStore == nil {
		return ErrEngineNotReady
	}
	if entry.IP == "" {
		entry.IP = clientIPFromContext(ctx)
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if _, ok := entry.Metadata["request_id"]; !ok {
		entry.Metadata["request_id"] = requestIDFromContext(ctx)
	}

	if err := e.auditStore.Append(ctx, entry); err != nil {
		e.metricInc(MetricAuditAppendFailed)
		return fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}

	e.mirror.Emit(ctx, internalaudit.Event{
		Timestamp:      entry.Timestamp,
		Action:         entry.Action,
		ActorID:        entry.ActorID,
		TargetTenantID: entry.TargetTenantID,
		TargetUserID:   entry.TargetUserID,
		SessionID:      entry.SessionID,
		IP:             entry.IP,
		Success:        entry.Success,
		Error:          entry.Error,
		Metadata:       entry.Metadata,
	})
	return nil
}

func (e *Engine) sessionLifetime() time.Duration {
	return e.config.Session.Lifetime
}

func accountStatusToError(status AccountStatus) error {
	if status == AccountRetired {
		return ErrAccountRetired
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ipAllowed checks an address against the account allowlist. List entries
// are exact addresses or CIDR prefixes; an empty list allows everything.
// An unparseable caller address fails closed against a non-empty list.
func ipAllowed(ip string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				continue
			}
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if other, err := netip.ParseAddr(entry); err == nil && other.Unmap() == addr {
			return true
		}
	}
	return false
}

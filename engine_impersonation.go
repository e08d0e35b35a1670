package platauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/venn-labs/platauth/jwt"
	"github.com/venn-labs/platauth/permission"
)

const (
	auditImpersonationStart   = "impersonation.start"
	auditImpersonationEnd     = "impersonation.end"
	auditImpersonationExpired = "impersonation.expired"
	auditImpersonationDenied  = "impersonation.denied"
)

// ImpersonationGrant is returned by [Engine.StartImpersonation]. The access
// token carries the tenant and target user and expires with the session.
type ImpersonationGrant struct {
	Session     ImpersonationSession
	AccessToken string
}

// StartImpersonation opens a time-boxed impersonation session of a tenant
// user. The actor needs the impersonation permission, a justification long
// enough to pass [Engine.ValidateReason], and no other active session for
// the same tenant user; a concurrent one returns [ErrConflict]. The ledger
// write is mandatory: if it fails, the session is torn down and the call
// fails.
func (e *Engine) StartImpersonation(ctx context.Context, actor *AuthResult, tenantID, targetUserID, reason string) (*ImpersonationGrant, error) {
	if e == nil || e.impStore == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthorized
	}

	if !e.ValidateReason(reason) {
		return nil, ErrValidationFailed
	}
	if err := e.registry.HasAll(actor.Role, []permission.Permission{permission.UsersImpersonate}); err != nil {
		entry := NewAuditEntry(auditImpersonationDenied, actor.AccountID).MarkFailed(err)
		entry.TargetTenantID = tenantID
		entry.TargetUserID = targetUserID
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, err
	}

	target, err := e.directory.GetTenantUser(ctx, tenantID, targetUserID)
	if err != nil || !target.Active {
		return nil, ErrNotFound
	}

	now := time.Now()
	sess := ImpersonationSession{
		ID:                ulid.Make().String(),
		PlatformAccountID: actor.AccountID,
		TenantID:          tenantID,
		TargetUserID:      targetUserID,
		TargetUserEmail:   target.Email,
		Reason:            reason,
		Active:            true,
		StartedAt:         now,
		ExpiresAt:         now.Add(e.config.Impersonation.MaxDuration),
	}
	if err := e.impStore.Create(ctx, &sess); err != nil {
		if errors.Is(err, ErrConflict) {
			e.metricInc(MetricImpersonationConflict)
		}
		return nil, err
	}

	token, err := e.jwtManager.Sign(jwt.Claims{
		Role:        string(actor.Role),
		SessionID:   actor.SessionID,
		TenantID:    tenantID,
		ActAsUserID: targetUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: actor.AccountID,
		},
	}, e.config.Impersonation.MaxDuration)
	if err != nil {
		e.forceEndImpersonation(ctx, sess.ID, actor.AccountID)
		return nil, err
	}

	e.metricInc(MetricImpersonationStarted)
	entry := NewAuditEntry(auditImpersonationStart, actor.AccountID)
	entry.TargetTenantID = tenantID
	entry.TargetUserID = targetUserID
	entry.SessionID = actor.SessionID
	entry.Metadata = map[string]string{
		"impersonation_id": sess.ID,
		"reason":           reason,
		"expires_at":       sess.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		e.forceEndImpersonation(ctx, sess.ID, actor.AccountID)
		return nil, aerr
	}

	return &ImpersonationGrant{Session: sess, AccessToken: token}, nil
}

func (e *Engine) forceEndImpersonation(ctx context.Context, id, endedBy string) {
	// Teardown after a failed start; the session must not stay open.
	_ = e.impStore.End(ctx, id, endedBy, "start_rolled_back", time.Now())
}

// EndImpersonation closes an active impersonation session. Only the actor
// who opened it may end it; anyone else gets [ErrNotOwner]. Ending an
// already-ended session returns [ErrConflict]. reason is optional and is
// recorded on the session and in the ledger when present.
func (e *Engine) EndImpersonation(ctx context.Context, actorID, impersonationID, reason string) error {
	if e == nil || e.impStore == nil {
		return ErrEngineNotReady
	}

	sess, err := e.impStore.Get(ctx, impersonationID)
	if err != nil {
		return ErrNotFound
	}
	if sess.PlatformAccountID != actorID {
		return ErrNotOwner
	}
	if !sess.Active {
		return ErrConflict
	}

	now := time.Now()
	if err := e.impStore.End(ctx, impersonationID, actorID, reason, now); err != nil {
		return err
	}

	actions, err := e.impStore.CountActions(ctx, impersonationID)
	if err != nil {
		actions = -1
	}

	e.metricInc(MetricImpersonationEnded)
	entry := NewAuditEntry(auditImpersonationEnd, actorID)
	entry.TargetTenantID = sess.TenantID
	entry.TargetUserID = sess.TargetUserID
	entry.Metadata = map[string]string{
		"impersonation_id": impersonationID,
		"actions":          strconv.Itoa(actions),
		"duration":         now.Sub(sess.StartedAt).Round(time.Second).String(),
	}
	if reason != "" {
		entry.Metadata["end_reason"] = reason
	}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return aerr
	}
	return nil
}

// LogImpersonationAction records one action taken under an impersonation
// session. Logging against a missing or already-ended session is a silent
// no-op so late in-flight requests cannot fail.
func (e *Engine) LogImpersonationAction(ctx context.Context, impersonationID, action, endpoint, method string, metadata map[string]string) error {
	if e == nil || e.impStore == nil {
		return ErrEngineNotReady
	}
	return e.impStore.AppendAction(ctx, impersonationID, action, endpoint, method, metadata, time.Now())
}

// SweepExpiredImpersonations force-ends every impersonation session past
// its expiry and writes one ledger entry per swept session. Intended for a
// periodic job.
func (e *Engine) SweepExpiredImpersonations(ctx context.Context) (int, error) {
	if e == nil || e.impStore == nil {
		return 0, ErrEngineNotReady
	}

	swept, err := e.impStore.SweepExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for _, sess := range swept {
		e.metricInc(MetricImpersonationEnded)
		entry := NewAuditEntry(auditImpersonationExpired, sess.PlatformAccountID)
		entry.TargetTenantID = sess.TenantID
		entry.TargetUserID = sess.TargetUserID
		entry.Metadata = map[string]string{
			"impersonation_id": sess.ID,
			"end_reason":       EndReasonTimedOut,
		}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return len(swept), aerr
		}
	}
	return len(swept), nil
}

// ActiveImpersonations lists every currently active impersonation session.
func (e *Engine) ActiveImpersonations(ctx context.Context) ([]ImpersonationSession, error) {
	if e == nil || e.impStore == nil {
		return nil, ErrEngineNotReady
	}
	return e.impStore.ListActive(ctx)
}

// ImpersonationHistory lists an actor's most recent impersonation
// sessions, newest first, capped by the configured history limit.
func (e *Engine) ImpersonationHistory(ctx context.Context, actorID string, limit int) ([]ImpersonationSession, error) {
	if e == nil || e.impStore == nil {
		return nil, ErrEngineNotReady
	}
	max := e.config.Impersonation.HistoryLimit
	if limit <= 0 || (max > 0 && limit > max) {
		limit = max
	}
	return e.impStore.ListHistory(ctx, actorID, limit)
}

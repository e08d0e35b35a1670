package platauth

import "context"

// QueryAudit reads the audit ledger, newest entries first, and returns the
// page plus the total match count. A zero or oversized Limit is clamped to
// the configured maximum.
func (e *Engine) QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, int, error) {
	if e == nil || e.auditStore == nil {
		return nil, 0, ErrEngineNotReady
	}

	max := e.config.Audit.QueryMaxLimit
	if max <= 0 {
		max = 100
	}
	if filter.Limit <= 0 || filter.Limit > max {
		filter.Limit = max
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return e.auditStore.Query(ctx, filter)
}

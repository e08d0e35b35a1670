package platauth

import (
	"context"
	"strconv"

	"github.com/venn-labs/platauth/internal/flows"
)

// RegenerateBackupCodes replaces the account's backup code set after a
// fresh TOTP proof and returns the new plaintext codes. Previously issued
// codes stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if e == nil || e.accounts == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	codes, err := flows.RunRegenerateBackupCodes(ctx, accountID, totpCode, e.backupCodeDeps())
	if err != nil {
		entry := NewAuditEntry(auditBackupCodesNew, accountID).MarkFailed(err)
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, err
	}

	entry := NewAuditEntry(auditBackupCodesNew, accountID)
	entry.Metadata = map[string]string{"count": strconv.Itoa(len(codes))}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return nil, aerr
	}
	return codes, nil
}

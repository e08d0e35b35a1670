package flows

import (
	"context"
	"strconv"

	"github.com/venn-labs/platauth/internal"
)

// BackupCodeAccount is the minimal account view the flow needs.
type BackupCodeAccount struct {
	AccountID string
	Status    uint8
	MFAStatus uint8
}

type BackupCodeRecord struct {
	Hash [32]byte
}

type BackupCodeErrors struct {
	EngineNotReady  error
	AccountNotFound error
	MFANotSetUp     error
	CodeInvalid     error
	CodeUnavailable error
}

type BackupCodeEvents struct {
	CodesRegenerated string
	CodeUsed         string
	CodeFailed       string
}

// BackupCodeDeps wires the flow to engine-owned state. Every function field
// except the hooks is required; hooks default to no-ops.
type BackupCodeDeps struct {
	CodeCount        int
	MFAStatusEnabled uint8

	GetAccount         func(ctx context.Context, accountID string) (BackupCodeAccount, error)
	AccountStatusError func(status uint8) error
	VerifyTOTP         func(ctx context.Context, accountID, totpCode string) error
	ReplaceCodes       func(ctx context.Context, accountID string, records []BackupCodeRecord) error
	ConsumeCode        func(ctx context.Context, accountID string, hash [32]byte) (consumed bool, remaining int, err error)

	MetricInc func(name string)
	EmitAudit func(ctx context.Context, action string, success bool, accountID string, cause error, metadata map[string]string)

	Events BackupCodeEvents
	Errors BackupCodeErrors
}

// RunConsumeBackupCode canonicalizes and burns a single backup code,
// returning how many codes the account has left. A code that does not match
// any stored hash is indistinguishable from one that was already used.
func RunConsumeBackupCode(ctx context.Context, accountID, code string, deps BackupCodeDeps) (int, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.ConsumeCode == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if accountID == "" {
		return 0, deps.Errors.AccountNotFound
	}

	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		deps.MetricInc("backup_code_failed")
		deps.EmitAudit(ctx, deps.Events.CodeFailed, false, accountID, deps.Errors.CodeInvalid, nil)
		return 0, deps.Errors.CodeInvalid
	}

	consumed, remaining, err := deps.ConsumeCode(ctx, accountID, internal.BackupCodeHash(accountID, canonical))
	if err != nil {
		return 0, deps.Errors.CodeUnavailable
	}
	if !consumed {
		deps.MetricInc("backup_code_failed")
		deps.EmitAudit(ctx, deps.Events.CodeFailed, false, accountID, deps.Errors.CodeInvalid, nil)
		return 0, deps.Errors.CodeInvalid
	}

	deps.MetricInc("backup_code_used")
	deps.EmitAudit(ctx, deps.Events.CodeUsed, true, accountID, nil, map[string]string{
		"remaining": strconv.Itoa(remaining),
	})
	return remaining, nil
}

// RunRegenerateBackupCodes replaces the full code set after a fresh TOTP
// proof. The plaintext codes are returned exactly once.
func RunRegenerateBackupCodes(ctx context.Context, accountID, totpCode string, deps BackupCodeDeps) ([]string, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.GetAccount == nil || deps.VerifyTOTP == nil || deps.ReplaceCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if accountID == "" {
		return nil, deps.Errors.AccountNotFound
	}

	account, err := deps.GetAccount(ctx, accountID)
	if err != nil {
		return nil, deps.Errors.AccountNotFound
	}
	if statusErr := deps.AccountStatusError(account.Status); statusErr != nil {
		return nil, statusErr
	}
	if account.MFAStatus != deps.MFAStatusEnabled {
		return nil, deps.Errors.MFANotSetUp
	}
	if err := deps.VerifyTOTP(ctx, accountID, totpCode); err != nil {
		return nil, err
	}

	count := deps.CodeCount
	if count <= 0 {
		count = 8
	}
	codes, err := internal.NewBackupCodes(count)
	if err != nil {
		return nil, deps.Errors.CodeUnavailable
	}

	records := make([]BackupCodeRecord, 0, count)
	for _, code := range codes {
		canonical := internal.CanonicalizeBackupCode(code)
		records = append(records, BackupCodeRecord{Hash: internal.BackupCodeHash(accountID, canonical)})
	}
	if err := deps.ReplaceCodes(ctx, accountID, records); err != nil {
		return nil, deps.Errors.CodeUnavailable
	}

	deps.MetricInc("backup_codes_regenerated")
	deps.EmitAudit(ctx, deps.Events.CodesRegenerated, true, accountID, nil, map[string]string{
		"count": strconv.Itoa(count),
	})
	return codes, nil
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.AccountStatusError == nil {
		deps.AccountStatusError = func(uint8) error { return nil }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(string) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, map[string]string) {}
	}
}

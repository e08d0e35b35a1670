package platauth

import (
	"context"
	"time"

	"github.com/venn-labs/platauth/internal"
	"github.com/venn-labs/platauth/internal/flows"
)

const (
	auditMFASetup       = "mfa.setup"
	auditMFAConfirm     = "mfa.confirm"
	auditMFADisable     = "mfa.disable"
	auditBackupCodesNew = "mfa.backup_codes_regenerated"
)

// SetupMFA generates a TOTP secret and a fresh backup code set for an
// account and moves it into the pending state. Login does not require MFA
// until the enrollment is proven via [Engine.ConfirmMFASetup].
func (e *Engine) SetupMFA(ctx context.Context, accountID string) (*MFASetup, error) {
	if e == nil || e.accounts == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	if statusErr := accountStatusToError(account.Status); statusErr != nil {
		return nil, statusErr
	}
	if account.MFAStatus == MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.accounts.SaveTOTPSecret(ctx, accountID, secret); err != nil {
		return nil, err
	}

	count := e.config.MFA.BackupCodeCount
	if count <= 0 {
		count = 8
	}
	codes, err := internal.NewBackupCodes(count)
	if err != nil {
		return nil, err
	}
	records := make([]BackupCodeRecord, 0, count)
	for _, code := range codes {
		canonical := internal.CanonicalizeBackupCode(code)
		records = append(records, BackupCodeRecord{Hash: internal.BackupCodeHash(accountID, canonical)})
	}
	if err := e.accounts.ReplaceBackupCodes(ctx, accountID, records); err != nil {
		return nil, err
	}

	entry := NewAuditEntry(auditMFASetup, accountID)
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return nil, aerr
	}

	return &MFASetup{
		SecretBase32: secretBase32,
		OTPAuthURI:   e.totp.ProvisionURI(secretBase32, account.Email),
		BackupCodes:  codes,
	}, nil
}

// ConfirmMFASetup proves possession of the enrolled secret with a live
// code and flips the account to MFA-enabled. Only enabled accounts are
// challenged at login.
func (e *Engine) ConfirmMFASetup(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return ErrNotFound
	}
	if statusErr := accountStatusToError(account.Status); statusErr != nil {
		return statusErr
	}
	if account.MFAStatus == MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if account.MFAStatus != MFAPending || len(account.TOTPSecret) == 0 {
		return ErrMFANotSetUp
	}

	ok, err := e.totp.VerifyCode(account.TOTPSecret, code, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		entry := NewAuditEntry(auditMFAConfirm, accountID).MarkFailed(ErrInvalidMFACode)
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return aerr
		}
		return ErrInvalidMFACode
	}

	if err := e.accounts.ConfirmTOTP(ctx, accountID); err != nil {
		return err
	}

	entry := NewAuditEntry(auditMFAConfirm, accountID)
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return aerr
	}
	return nil
}

// DisableMFA turns MFA off after a fresh TOTP proof. Backup codes are
// cleared along with the secret.
func (e *Engine) DisableMFA(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return ErrNotFound
	}
	if account.MFAStatus != MFAEnabled {
		return ErrMFANotSetUp
	}

	ok, err := e.totp.VerifyCode(account.TOTPSecret, code, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		entry := NewAuditEntry(auditMFADisable, accountID).MarkFailed(ErrInvalidMFACode)
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return aerr
		}
		return ErrInvalidMFACode
	}

	if err := e.accounts.DisableMFA(ctx, accountID); err != nil {
		return err
	}
	if err := e.accounts.ReplaceBackupCodes(ctx, accountID, nil); err != nil {
		return err
	}

	entry := NewAuditEntry(auditMFADisable, accountID)
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return aerr
	}
	return nil
}

// verifyTOTPProof adapts TOTP verification to the flow hook shape.
func (e *Engine) verifyTOTPProof(ctx context.Context, accountID, code string) error {
	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return ErrNotFound
	}
	ok, err := e.totp.VerifyCode(account.TOTPSecret, code, time.Now())
	if err != nil || !ok {
		return ErrInvalidMFACode
	}
	return nil
}

func (e *Engine) backupCodeDeps() flows.BackupCodeDeps {
	return flows.BackupCodeDeps{
		CodeCount:        e.config.MFA.BackupCodeCount,
		MFAStatusEnabled: uint8(MFAEnabled),
		GetAccount: func(ctx context.Context, accountID string) (flows.BackupCodeAccount, error) {
			account, err := e.accounts.GetAccountByID(ctx, accountID)
			if err != nil {
				return flows.BackupCodeAccount{}, err
			}
			return flows.BackupCodeAccount{
				AccountID: account.ID,
				Status:    uint8(account.Status),
				MFAStatus: uint8(account.MFAStatus),
			}, nil
		},
		AccountStatusError: func(status uint8) error {
			return accountStatusToError(AccountStatus(status))
		},
		VerifyTOTP: e.verifyTOTPProof,
		ReplaceCodes: func(ctx context.Context, accountID string, records []flows.BackupCodeRecord) error {
			out := make([]BackupCodeRecord, len(records))
			for i, r := range records {
				out[i] = BackupCodeRecord{Hash: r.Hash}
			}
			return e.accounts.ReplaceBackupCodes(ctx, accountID, out)
		},
		ConsumeCode: func(ctx context.Context, accountID string, hash [32]byte) (bool, int, error) {
			return e.accounts.ConsumeBackupCode(ctx, accountID, hash)
		},
		MetricInc: e.flowMetricInc,
		Errors: flows.BackupCodeErrors{
			EngineNotReady:  ErrEngineNotReady,
			AccountNotFound: ErrNotFound,
			MFANotSetUp:     ErrMFANotSetUp,
			CodeInvalid:     ErrInvalidMFACode,
			CodeUnavailable: ErrStoreUnavailable,
		},
	}
}

func (e *Engine) flowMetricInc(name string) {
	switch name {
	case "backup_code_used":
		e.metricInc(MetricBackupCodeUsed)
	case "backup_code_failed":
		e.metricInc(MetricBackupCodeFailed)
	case "backup_codes_regenerated":
		e.metricInc(MetricBackupCodesRegenerated)
	}
}

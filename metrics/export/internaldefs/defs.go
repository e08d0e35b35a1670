package internaldefs

import (
	"github.com/venn-labs/platauth"
)

// CounterDef maps one engine counter to its exported metric name.
type CounterDef struct {
	ID   platauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in a stable export order.
var CounterDefs = []CounterDef{
	{ID: platauth.MetricLoginSuccess, Name: "platauth_login_success_total", Help: "Successful platform logins."},
	{ID: platauth.MetricLoginFailure, Name: "platauth_login_failure_total", Help: "Failed platform login attempts."},
	{ID: platauth.MetricLoginLocked, Name: "platauth_login_locked_total", Help: "Login attempts rejected by account lockout."},
	{ID: platauth.MetricLoginThrottled, Name: "platauth_login_throttled_total", Help: "Login attempts rejected by the fixed-window throttle."},
	{ID: platauth.MetricLoginIPRejected, Name: "platauth_login_ip_rejected_total", Help: "Login attempts rejected by the IP allowlist."},
	{ID: platauth.MetricMFARequired, Name: "platauth_mfa_required_total", Help: "Logins that produced an MFA challenge."},
	{ID: platauth.MetricMFASuccess, Name: "platauth_mfa_success_total", Help: "Successful MFA completions."},
	{ID: platauth.MetricMFAFailure, Name: "platauth_mfa_failure_total", Help: "Failed MFA completions."},
	{ID: platauth.MetricMFAReplay, Name: "platauth_mfa_replay_total", Help: "Replayed or expired temp MFA tokens."},
	{ID: platauth.MetricBackupCodeUsed, Name: "platauth_backup_code_used_total", Help: "Backup codes consumed at the MFA step."},
	{ID: platauth.MetricBackupCodeFailed, Name: "platauth_backup_code_failed_total", Help: "Rejected backup code attempts."},
	{ID: platauth.MetricBackupCodesRegenerated, Name: "platauth_backup_codes_regenerated_total", Help: "Backup code set regenerations."},
	{ID: platauth.MetricSessionCreated, Name: "platauth_session_created_total", Help: "Created sessions."},
	{ID: platauth.MetricSessionRevoked, Name: "platauth_session_revoked_total", Help: "Revoked sessions."},
	{ID: platauth.MetricImpersonationStarted, Name: "platauth_impersonation_started_total", Help: "Started impersonation sessions."},
	{ID: platauth.MetricImpersonationEnded, Name: "platauth_impersonation_ended_total", Help: "Ended or expired impersonation sessions."},
	{ID: platauth.MetricImpersonationConflict, Name: "platauth_impersonation_conflict_total", Help: "Impersonation starts rejected by the active-session uniqueness rule."},
	{ID: platauth.MetricAuditAppendFailed, Name: "platauth_audit_append_failed_total", Help: "Failed mandatory audit ledger writes."},
}

package platauth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/venn-labs/platauth/internal"
	"github.com/venn-labs/platauth/internal/flows"
	"github.com/venn-labs/platauth/internal/rate"
	"github.com/venn-labs/platauth/internal/stores"
	"github.com/venn-labs/platauth/jwt"
	"github.com/venn-labs/platauth/permission"
	"github.com/venn-labs/platauth/session"
)

const (
	auditLoginSuccess      = "login.success"
	auditLoginFailure      = "login.failure"
	auditLoginLocked       = "login.locked"
	auditLoginIPRejected   = "login.ip_rejected"
	auditLoginMFAChallenge = "login.mfa_challenge"
	auditMFASuccess        = "mfa.success"
	auditMFAFailure        = "mfa.failure"
	auditSessionLogout     = "session.logout"
	auditSessionRevokeAll  = "session.revoke_all"
	auditSessionRefresh    = "session.refresh"
)

// Login runs the password step of platform login. When the account has MFA
// enabled the result carries a one-time temp token instead of credentials;
// exchange it via [Engine.CompleteMFALogin]. Every attempt, successful or
// not, lands in the audit ledger before Login returns.
func (e *Engine) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if e == nil || e.accounts == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	ip := clientIPFromContext(ctx)

	// The throttle runs before any account state is touched so it cannot
	// leak whether the email exists.
	if err := e.limiter.Check(ctx, email, ip); err != nil {
		if !errors.Is(err, rate.ErrThrottled) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricLoginThrottled)
		entry := NewAuditEntry(auditLoginFailure, "").MarkFailed(ErrTooManyAttempts)
		entry.Metadata = map[string]string{"email": email, "reason": "throttled"}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrTooManyAttempts
	}

	account, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		if terr := e.limiter.RecordFailure(ctx, email, ip); terr != nil {
			log.Print("platauth: login throttle update failed")
		}
		entry := NewAuditEntry(auditLoginFailure, "").MarkFailed(ErrInvalidCredentials)
		entry.Metadata = map[string]string{"email": email, "reason": "unknown_account"}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrInvalidCredentials
	}

	if account.Status == AccountRetired {
		e.metricInc(MetricLoginFailure)
		entry := NewAuditEntry(auditLoginFailure, account.ID).MarkFailed(ErrInvalidCredentials)
		entry.Metadata = map[string]string{"reason": "account_retired"}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	// The lockout gate comes before any password work so a locked account
	// cannot be probed or have its hash timing measured.
	if account.LockedUntil.After(now) {
		e.metricInc(MetricLoginLocked)
		entry := NewAuditEntry(auditLoginLocked, account.ID).MarkFailed(ErrAccountLocked)
		entry.Metadata = map[string]string{
			"locked_until": account.LockedUntil.UTC().Format(time.RFC3339),
		}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrAccountLocked
	}

	if !ipAllowed(ip, account.AllowedIPs) {
		e.metricInc(MetricLoginIPRejected)
		entry := NewAuditEntry(auditLoginIPRejected, account.ID).MarkFailed(ErrIPNotAllowed)
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrIPNotAllowed
	}

	if input.Password == "" {
		// Counts like any other wrong password; no hashing work needed.
		return nil, e.recordFailedPassword(ctx, account, email, ip)
	}

	ok, upgradedHash, err := e.hasher.VerifyAndUpgrade(input.Password, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.recordFailedPassword(ctx, account, email, ip)
	}
	input.Password = ""

	if err := e.accounts.ClearLoginFailures(ctx, account.ID); err != nil {
		log.Print("platauth: login failure counter reset failed")
	}
	if err := e.limiter.Reset(ctx, email, ip); err != nil {
		log.Print("platauth: login throttle reset failed")
	}
	if upgradedHash != "" && e.config.Password.UpgradeOnLogin {
		// Rehash update is best-effort and must not block successful login.
		if err := e.accounts.UpdatePasswordHash(ctx, account.ID, upgradedHash); err != nil {
			log.Print("platauth: password hash upgrade update failed")
		}
	}

	sess, secret, err := e.createSession(ctx, account, now)
	if err != nil {
		return nil, err
	}

	if sess.MFARequired {
		return e.issueMFAChallenge(ctx, account, sess)
	}

	return e.issueCredentials(ctx, account.ID, sess, secret, auditLoginSuccess)
}

func (e *Engine) recordFailedPassword(ctx context.Context, account PlatformAccount, email, ip string) error {
	e.metricInc(MetricLoginFailure)

	if terr := e.limiter.RecordFailure(ctx, email, ip); terr != nil {
		log.Print("platauth: login throttle update failed")
	}

	failures, err := e.accounts.RecordLoginFailure(ctx, account.ID)
	if err != nil {
		log.Print("platauth: login failure counter increment failed")
	}

	if err == nil && failures >= e.config.Login.MaxFailedAttempts {
		until := time.Now().Add(e.config.Login.LockDuration)
		if lockErr := e.accounts.LockAccount(ctx, account.ID, until); lockErr != nil {
			log.Print("platauth: account lock failed")
		} else {
			e.metricInc(MetricLoginLocked)
			entry := NewAuditEntry(auditLoginLocked, account.ID).MarkFailed(ErrAccountLocked)
			entry.Metadata = map[string]string{
				"failed_attempts": strconv.Itoa(failures),
				"locked_until":    until.UTC().Format(time.RFC3339),
			}
			if aerr := e.appendAudit(ctx, entry); aerr != nil {
				return aerr
			}
			// The attempt that trips the lock still reads as a bad password;
			// ErrAccountLocked is reserved for attempts made while locked.
			return ErrInvalidCredentials
		}
	}

	entry := NewAuditEntry(auditLoginFailure, account.ID).MarkFailed(ErrInvalidCredentials)
	entry.Metadata = map[string]string{"reason": "password_mismatch"}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return aerr
	}
	return ErrInvalidCredentials
}

func (e *Engine) createSession(ctx context.Context, account PlatformAccount, now time.Time) (*session.Session, [32]byte, error) {
	var zero [32]byte

	sid, err := internal.NewID()
	if err != nil {
		return nil, zero, err
	}
	secret, err := internal.NewSessionSecret()
	if err != nil {
		return nil, zero, err
	}

	sessionID := sid.String()
	tokenHash := internal.HashSessionSecret(sessionID, secret)
	ip := clientIPFromContext(ctx)
	ua := userAgentFromContext(ctx)

	sess := &session.Session{
		ID:          sessionID,
		AccountID:   account.ID,
		Role:        string(account.Role),
		TokenHash:   hex.EncodeToString(tokenHash[:]),
		MFARequired: account.MFAStatus == MFAEnabled,
		IP:          ip,
		UserAgent:   ua,
		IPHash:      hex.EncodeToString(hashBindingHex(ip)),
		UAHash:      hex.EncodeToString(hashBindingHex(ua)),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(e.sessionLifetime()).Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess, e.sessionLifetime()); err != nil {
		return nil, zero, err
	}
	e.metricInc(MetricSessionCreated)
	return sess, secret, nil
}

func hashBindingHex(value string) []byte {
	h := internal.HashBinding(value)
	return h[:]
}

// issueMFAChallenge mints the one-time temp token for a session awaiting
// its MFA step. The session is usable only after CompleteMFALogin.
func (e *Engine) issueMFAChallenge(ctx context.Context, account PlatformAccount, sess *session.Session) (*LoginResult, error) {
	token, tokenID, err := internal.MintOneTime(e.config.MFA.TempTokenKey)
	if err != nil {
		e.destroySession(ctx, sess)
		return nil, err
	}

	record := &stores.TempMFAToken{
		AccountID: account.ID,
		SessionID: sess.ID,
		IPHash:    internal.HashBinding(clientIPFromContext(ctx)),
		UAHash:    internal.HashBinding(userAgentFromContext(ctx)),
		ExpiresAt: time.Now().Add(e.config.MFA.TempTokenTTL).Unix(),
	}
	if err := e.tempMFAStore.Save(ctx, tokenID, record, e.config.MFA.TempTokenTTL); err != nil {
		e.destroySession(ctx, sess)
		return nil, err
	}

	e.metricInc(MetricMFARequired)
	entry := NewAuditEntry(auditLoginMFAChallenge, account.ID)
	entry.SessionID = sess.ID
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		e.destroySession(ctx, sess)
		return nil, aerr
	}

	return &LoginResult{
		MFARequired: true,
		TempToken:   token,
		SessionID:   sess.ID,
	}, nil
}

// CompleteMFALogin exchanges a one-time temp token plus a TOTP or backup
// code for session credentials. The temp token burns on first use: a
// replayed, expired, or rebound token fails exactly like a wrong code.
func (e *Engine) CompleteMFALogin(ctx context.Context, tempToken, code string) (*LoginResult, error) {
	if e == nil || e.tempMFAStore == nil {
		return nil, ErrEngineNotReady
	}

	tokenID, ok := internal.ParseOneTime(e.config.MFA.TempTokenKey, tempToken)
	if !ok {
		e.metricInc(MetricMFAFailure)
		entry := NewAuditEntry(auditMFAFailure, "").MarkFailed(ErrInvalidMFACode)
		entry.Metadata = map[string]string{"reason": "token_forged"}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrInvalidMFACode
	}

	record, err := e.tempMFAStore.Consume(ctx, tokenID)
	if err != nil {
		reason := "token_consumed"
		if errors.Is(err, stores.ErrTempMFAExpired) {
			reason = "token_expired"
		} else if !errors.Is(err, stores.ErrTempMFANotFound) {
			return nil, err
		}
		e.metricInc(MetricMFAReplay)
		entry := NewAuditEntry(auditMFAFailure, "").MarkFailed(ErrInvalidMFACode)
		entry.Metadata = map[string]string{"reason": reason}
		if aerr := e.appendAudit(ctx, entry); aerr != nil {
			return nil, aerr
		}
		return nil, ErrInvalidMFACode
	}

	// The token is bound to the client that passed the password step.
	ipHash := internal.HashBinding(clientIPFromContext(ctx))
	uaHash := internal.HashBinding(userAgentFromContext(ctx))
	if subtle.ConstantTimeCompare(record.IPHash[:], ipHash[:]) != 1 ||
		subtle.ConstantTimeCompare(record.UAHash[:], uaHash[:]) != 1 {
		return nil, e.failMFA(ctx, record.AccountID, record.SessionID, "binding_mismatch")
	}

	account, err := e.accounts.GetAccountByID(ctx, record.AccountID)
	if err != nil {
		return nil, e.failMFA(ctx, record.AccountID, record.SessionID, "account_missing")
	}
	if statusErr := accountStatusToError(account.Status); statusErr != nil {
		return nil, e.failMFA(ctx, record.AccountID, record.SessionID, "account_retired")
	}

	sess, err := e.sessionStore.Get(ctx, record.SessionID)
	if err != nil || sess.AccountID != account.ID || sess.Revoked {
		return nil, e.failMFA(ctx, record.AccountID, record.SessionID, "session_gone")
	}

	backupRemaining := -1
	verified, err := e.totp.VerifyCode(account.TOTPSecret, code, time.Now())
	if err != nil {
		verified = false
	}
	if !verified {
		remaining, berr := e.consumeBackupCode(ctx, account.ID, code)
		if berr != nil {
			return nil, e.failMFA(ctx, record.AccountID, record.SessionID, "code_mismatch")
		}
		verified = true
		backupRemaining = remaining
	}

	now := time.Now()
	sess.MFAVerified = true
	sess.MFAVerifiedAt = now.Unix()
	if err := e.sessionStore.Update(ctx, sess); err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	secret, err := e.reissueSessionSecret(ctx, sess)
	if err != nil {
		return nil, err
	}

	result, err := e.issueCredentials(ctx, account.ID, sess, secret, auditMFASuccess)
	if err != nil {
		return nil, err
	}
	if backupRemaining >= 0 {
		result.BackupCodesRemaining = backupRemaining
	}
	return result, nil
}

func (e *Engine) failMFA(ctx context.Context, accountID, sessionID, reason string) error {
	e.metricInc(MetricMFAFailure)
	entry := NewAuditEntry(auditMFAFailure, accountID).MarkFailed(ErrInvalidMFACode)
	entry.SessionID = sessionID
	entry.Metadata = map[string]string{"reason": reason}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return aerr
	}
	return ErrInvalidMFACode
}

// reissueSessionSecret rotates the opaque session secret so the token
// handed out after the MFA step differs from anything minted before it.
func (e *Engine) reissueSessionSecret(ctx context.Context, sess *session.Session) ([32]byte, error) {
	var zero [32]byte
	secret, err := internal.NewSessionSecret()
	if err != nil {
		return zero, err
	}
	tokenHash := internal.HashSessionSecret(sess.ID, secret)
	sess.TokenHash = hex.EncodeToString(tokenHash[:])
	if err := e.sessionStore.Update(ctx, sess); err != nil {
		return zero, err
	}
	return secret, nil
}

// issueCredentials signs the access token, encodes the opaque session
// token, and writes the mandatory audit entry. An audit failure tears the
// session down and fails the login.
func (e *Engine) issueCredentials(ctx context.Context, accountID string, sess *session.Session, secret [32]byte, auditAction string) (*LoginResult, error) {
	access, err := e.jwtManager.Sign(jwt.Claims{
		Role:      sess.Role,
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: accountID,
		},
	}, e.config.JWT.AccessTTL)
	if err != nil {
		e.destroySession(ctx, sess)
		return nil, err
	}

	sessionToken, err := internal.EncodeSessionToken(sess.ID, secret)
	if err != nil {
		e.destroySession(ctx, sess)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	entry := NewAuditEntry(auditAction, accountID)
	entry.SessionID = sess.ID
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		e.destroySession(ctx, sess)
		return nil, aerr
	}

	return &LoginResult{
		AccessToken:  access,
		SessionToken: sessionToken,
		SessionID:    sess.ID,
	}, nil
}

func (e *Engine) destroySession(ctx context.Context, sess *session.Session) {
	if err := e.sessionStore.Delete(ctx, sess.AccountID, sess.ID); err != nil {
		log.Print("platauth: session teardown failed")
	}
}

// Logout revokes the caller's session. Revoking an already-revoked session
// succeeds; revoking someone else's returns [ErrNotOwner].
func (e *Engine) Logout(ctx context.Context, accountID, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.Revoke(ctx, accountID, sessionID, accountID, "logout", time.Now())
	switch {
	case err == nil:
		e.metricInc(MetricSessionRevoked)
	case errors.Is(err, session.ErrSessionNotFound):
		err = ErrSessionNotFound
	case errors.Is(err, session.ErrNotSessionOwner):
		err = ErrNotOwner
	}

	entry := NewAuditEntry(auditSessionLogout, accountID)
	entry.SessionID = sessionID
	if err != nil {
		entry.MarkFailed(err)
	}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return aerr
	}
	return err
}

// RevokeAllSessions revokes every live session of an account and returns
// how many were newly revoked. revokedBy names the actor, which may be a
// security admin rather than the account itself.
func (e *Engine) RevokeAllSessions(ctx context.Context, accountID, revokedBy, reason string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.sessionStore.RevokeAll(ctx, accountID, revokedBy, reason, time.Now())
	if err == nil {
		for i := 0; i < count; i++ {
			e.metricInc(MetricSessionRevoked)
		}
	}

	entry := NewAuditEntry(auditSessionRevokeAll, revokedBy)
	entry.Metadata = map[string]string{
		"target_account": accountID,
		"revoked":        strconv.Itoa(count),
		"reason":         reason,
	}
	if err != nil {
		entry.MarkFailed(err)
	}
	if aerr := e.appendAudit(ctx, entry); aerr != nil {
		return count, aerr
	}
	return count, err
}

// Refresh exchanges a valid opaque session token for a fresh access token
// and a rotated session token. The old session token stops working.
func (e *Engine) Refresh(ctx context.Context, sessionToken string) (*LoginResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.authenticateSessionToken(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	secret, err := e.reissueSessionSecret(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := e.sessionStore.Touch(ctx, sess.ID, time.Now()); err != nil {
		log.Print("platauth: session activity stamp failed")
	}

	return e.issueCredentials(ctx, sess.AccountID, sess, secret, auditSessionRefresh)
}

// authenticateSessionToken decodes and verifies an opaque session token
// against the stored salted hash and the session's usability rules.
func (e *Engine) authenticateSessionToken(ctx context.Context, sessionToken string) (*session.Session, error) {
	sessionID, secret, err := internal.DecodeSessionToken(sessionToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	providedHash := internal.HashSessionSecret(sessionID, secret)
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(providedHash[:])), []byte(sess.TokenHash)) != 1 {
		return nil, ErrUnauthorized
	}
	if !sess.Usable(time.Now()) {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Validate checks an access token and its backing session and returns the
// caller's identity. A revoked or expired session fails validation even
// while the token's own signature and expiry are still good.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := e.sessionStore.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if sess.AccountID != claims.Subject || !sess.Usable(time.Now()) {
		return nil, ErrUnauthorized
	}

	if err := e.sessionStore.Touch(ctx, sess.ID, time.Now()); err != nil {
		log.Print("platauth: session activity stamp failed")
	}

	return &AuthResult{
		AccountID:    claims.Subject,
		Role:         permission.Role(claims.Role),
		SessionID:    claims.SessionID,
		TenantID:     claims.TenantID,
		ActAsUserID:  claims.ActAsUserID,
		Impersonated: claims.ActAsUserID != "",
	}, nil
}

func (e *Engine) consumeBackupCode(ctx context.Context, accountID, code string) (int, error) {
	return flows.RunConsumeBackupCode(ctx, accountID, code, e.backupCodeDeps())
}

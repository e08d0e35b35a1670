package platauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/venn-labs/platauth/internal/audit"
	"github.com/venn-labs/platauth/permission"
)

// AccountStatus represents the lifecycle state of a platform account.
type AccountStatus uint8

const (
	// AccountActive is a normal, usable account.
	AccountActive AccountStatus = iota
	// AccountRetired is an offboarded account that can never authenticate.
	AccountRetired
)

// MFAStatus tracks an account's authenticator enrollment.
type MFAStatus uint8

const (
	// MFADisabled means no authenticator has been set up.
	MFADisabled MFAStatus = iota
	// MFAPending means a secret was provisioned but never confirmed with a
	// valid code. Pending enrollment does not gate login.
	MFAPending
	// MFAEnabled means enrollment was confirmed; login requires the MFA step.
	MFAEnabled
)

// PlatformAccount is the operator account record returned by
// [AccountProvider]. AllowedIPs holds exact addresses or CIDR ranges; an
// empty list means no network restriction.
type PlatformAccount struct {
	ID           string
	Email        string
	PasswordHash string
	Role         permission.Role
	Status       AccountStatus
	MFAStatus    MFAStatus
	TOTPSecret   []byte
	AllowedIPs   []string

	FailedAttempts int
	LockedUntil    time.Time
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// AccountProvider is the interface the host application implements to give
// the engine access to platform account storage.
type AccountProvider interface {
	GetAccountByEmail(ctx context.Context, email string) (PlatformAccount, error)
	GetAccountByID(ctx context.Context, accountID string) (PlatformAccount, error)
	UpdatePasswordHash(ctx context.Context, accountID, newHash string) error

	// RecordLoginFailure increments the failure counter and returns the new
	// count. The engine decides when to lock.
	RecordLoginFailure(ctx context.Context, accountID string) (int, error)
	LockAccount(ctx context.Context, accountID string, until time.Time) error
	ClearLoginFailures(ctx context.Context, accountID string) error

	// SaveTOTPSecret stores a provisioned secret and moves the account to
	// [MFAPending]. ConfirmTOTP moves it to [MFAEnabled]; DisableMFA clears
	// the secret and backup codes.
	SaveTOTPSecret(ctx context.Context, accountID string, secret []byte) error
	ConfirmTOTP(ctx context.Context, accountID string) error
	DisableMFA(ctx context.Context, accountID string) error

	ReplaceBackupCodes(ctx context.Context, accountID string, codes []BackupCodeRecord) error
	// ConsumeBackupCode removes a matching code hash and reports whether it
	// matched and how many codes remain.
	ConsumeBackupCode(ctx context.Context, accountID string, codeHash [32]byte) (consumed bool, remaining int, err error)
}

// TenantUser is the minimal view of an end user inside a tenant, used to
// verify impersonation targets.
type TenantUser struct {
	ID       string
	TenantID string
	Email    string
	Active   bool
}

// DirectoryProvider resolves tenant users for impersonation.
type DirectoryProvider interface {
	GetTenantUser(ctx context.Context, tenantID, userID string) (TenantUser, error)
}

// LoginInput carries the credentials for [Engine.Login]. Email is
// normalized before lookup.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is returned by [Engine.Login] and [Engine.CompleteMFALogin].
// When MFARequired is set, AccessToken and SessionToken are empty and
// TempToken must be exchanged via [Engine.CompleteMFALogin].
type LoginResult struct {
	AccessToken  string
	SessionToken string
	SessionID    string

	MFARequired bool
	TempToken   string

	// BackupCodesRemaining is set when the MFA step consumed a backup code.
	BackupCodesRemaining int
}

// AuthResult is returned by [Engine.Validate].
type AuthResult struct {
	AccountID string
	Role      permission.Role
	SessionID string

	// Impersonation context carried by the token, if any.
	TenantID     string
	ActAsUserID  string
	Impersonated bool
}

// MFASetup holds the provisioning material returned by [Engine.SetupMFA].
// The secret and backup codes are shown exactly once.
type MFASetup struct {
	SecretBase32 string
	OTPAuthURI   string
	BackupCodes  []string
}

// AuditEntry is one row of the append-only audit ledger. Entries default to
// success; call [AuditEntry.MarkFailed] to record a failed operation.
type AuditEntry struct {
	ID             string
	Timestamp      time.Time
	Action         string
	ActorID        string
	TargetTenantID string
	TargetUserID   string
	SessionID      string
	IP             string
	Success        bool
	Error          string
	Metadata       map[string]string
}

// NewAuditEntry creates an entry stamped now and marked successful.
func NewAuditEntry(action, actorID string) *AuditEntry {
	return &AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		ActorID:   actorID,
		Success:   true,
	}
}

// MarkFailed flips the entry to a failure and records the cause.
func (e *AuditEntry) MarkFailed(cause error) *AuditEntry {
	e.Success = false
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// AuditFilter selects ledger entries for [Engine.AuditQuery]. Zero values
// mean "no constraint". Limit is clamped by the engine.
type AuditFilter struct {
	ActorID        string
	Action         string
	TargetTenantID string
	TargetUserID   string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// AuditStore is the durable ledger. Append is synchronous and mandatory:
// a failed append fails the operation being audited.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	// Query returns matching entries newest first, plus the total match
	// count before pagination.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, int, error)
}

// EndReasonTimedOut is stamped on impersonation sessions closed by the
// expiry sweep rather than by their actor.
const EndReasonTimedOut = "timed_out"

// ImpersonationSession is one time-boxed impersonation grant. EndedAt is
// zero while the session is active. TargetUserEmail is captured at start
// time so the ledger stays meaningful if the tenant user is later renamed
// or deleted.
type ImpersonationSession struct {
	ID                string
	PlatformAccountID string
	TenantID          string
	TargetUserID      string
	TargetUserEmail   string
	Reason            string
	Active            bool
	StartedAt         time.Time
	ExpiresAt         time.Time
	EndedAt           time.Time
	EndedBy           string
	EndReason         string
}

// ImpersonationAction is one action logged against an impersonation session.
type ImpersonationAction struct {
	ID              int64
	ImpersonationID string
	Action          string
	Endpoint        string
	Method          string
	Metadata        map[string]string
	OccurredAt      time.Time
}

// ImpersonationStore persists impersonation sessions and their action logs.
type ImpersonationStore interface {
	// Create inserts a new active session. A concurrent active session for
	// the same (actor, tenant, target) triple returns [ErrConflict].
	Create(ctx context.Context, sess *ImpersonationSession) error
	Get(ctx context.Context, id string) (ImpersonationSession, error)
	// End deactivates the session. endedBy and reason are recorded. Ending
	// an already-ended session returns [ErrConflict]; a missing one
	// [ErrNotFound].
	End(ctx context.Context, id, endedBy, reason string, at time.Time) error
	// AppendAction records an action; a missing or inactive session is a
	// silent no-op.
	AppendAction(ctx context.Context, impersonationID, action, endpoint, method string, metadata map[string]string, at time.Time) error
	CountActions(ctx context.Context, impersonationID string) (int, error)
	// SweepExpired deactivates sessions past their expiry and returns them.
	SweepExpired(ctx context.Context, now time.Time) ([]ImpersonationSession, error)
	ListActive(ctx context.Context) ([]ImpersonationSession, error)
	ListHistory(ctx context.Context, actorID string, limit int) ([]ImpersonationSession, error)
}

// AuditEvent is the mirrored audit event delivered to [AuditSink]. The
// Postgres ledger, not the mirror, is the source of truth.
type AuditEvent = internalaudit.Event

// AuditSink receives mirrored audit events.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON lines to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

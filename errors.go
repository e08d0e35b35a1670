package platauth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for bearer tokens that fail validation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for any failed login attempt where
	// revealing the precise cause would leak account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account is in its lockout window.
	ErrAccountLocked = errors.New("account locked")

	// ErrTooManyAttempts is returned when the login throttle rejects the
	// attempt before any account state is consulted.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrAccountRetired is returned when a retired account attempts any operation.
	ErrAccountRetired = errors.New("account retired")
	// ErrIPNotAllowed is returned when the caller's address is outside the
	// account's allowlist.
	ErrIPNotAllowed = errors.New("ip not allowed")
	// ErrMFARequired signals that password verification succeeded and the
	// login must continue with the MFA step.
	ErrMFARequired = errors.New("mfa required")
	// ErrInvalidMFACode is returned for wrong, expired, or replayed MFA proofs.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrMFANotSetUp is returned when an MFA operation requires an enrolled
	// authenticator and none exists.
	ErrMFANotSetUp = errors.New("mfa not set up")
	// ErrMFAAlreadyEnabled is returned when enrollment is attempted on an
	// account that already has MFA enabled.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrSessionNotFound is returned when a referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with an existing record,
	// most notably a second active impersonation of the same target.
	ErrConflict = errors.New("conflict")
	// ErrNotOwner is returned when an operation is attempted on a resource
	// owned by a different platform account. It unwraps to ErrUnauthorized
	// so boundary layers can classify it with a single errors.Is.
	ErrNotOwner = fmt.Errorf("not owner: %w", ErrUnauthorized)
	// ErrValidationFailed is returned for inputs that fail validation rules.
	ErrValidationFailed = errors.New("validation failed")
	// ErrAuditUnavailable is returned when the mandatory audit write fails;
	// the operation that triggered the write fails with it.
	ErrAuditUnavailable = errors.New("audit ledger unavailable")
	// ErrStoreUnavailable wraps backend failures from Redis or Postgres.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when the engine is missing a dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
)

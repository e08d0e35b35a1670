// Package platauth is the authorization and session-security core for a
// platform operations console sitting above a multi-tenant application.
//
// It covers five concerns: a role-to-permission registry, a multi-step
// login state machine with TOTP and backup-code MFA, Redis-backed sessions
// with owner-scoped revocation, time-boxed impersonation of tenant users,
// and an append-only audit ledger whose writes are mandatory: a
// security-relevant operation that cannot be recorded does not happen.
//
// Construct an [Engine] through the builder:
//
//	engine, err := platauth.New().
//		WithRedis(rdb).
//		WithAccountProvider(accounts).
//		WithDirectoryProvider(directory).
//		WithAuditStore(pg).
//		WithImpersonationStore(pg).
//		Build()
//
// The engine is safe for concurrent use. Storage for accounts, the tenant
// directory, the ledger, and impersonation sessions is supplied by the
// caller; the pgstore subpackage provides Postgres-backed implementations
// of the latter two.
package platauth

// Package pgstore persists the audit ledger and impersonation sessions in
// Postgres. A single [Store] satisfies both platauth.AuditStore and
// platauth.ImpersonationStore; the embedded schema in schema.sql is
// applied by [Store.Migrate].
package pgstore

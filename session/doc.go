// Package session persists platform console sessions in Redis.
//
// A session is created at the password step of login and becomes usable
// only once any required MFA step has completed. Revocation is a tombstone
// patch rather than a delete: the record stays until its TTL so validation
// distinguishes a revoked session from one that never existed.
package session

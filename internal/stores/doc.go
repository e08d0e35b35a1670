// Package stores holds Redis-backed short-lived records that are internal
// to the engine, most notably the pending MFA challenge minted between the
// password step and the MFA step of platform login.
package stores

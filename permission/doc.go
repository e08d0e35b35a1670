// Package permission holds the static role→permission table for the
// platform console and the HasAll check used by the request guard.
//
// # Security boundary
//
// The table is a plain associative structure, not a class hierarchy or a
// policy language: every grant is visible in one place
// ([Default]). It is built once at process start, frozen, and never
// mutated at runtime; widening a role is a code change and a redeploy.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import platauth, jwt, or session.
//   - Accept role or permission registrations after Freeze.
package permission

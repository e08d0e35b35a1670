// Package internal holds the secret and token primitives shared by the
// engine: random identifiers, the opaque session credential codec, salted
// hashing for binding values, HMAC-signed one-time tokens, and backup
// code generation. Pure computation and crypto/rand only; no I/O.
package internal

// Package password hashes and verifies platform-account credentials.
//
// New hashes are argon2id in PHC string format. Stored bcrypt hashes from
// the previous credential scheme still verify; VerifyAndUpgrade reports a
// replacement argon2id hash for them so call sites can upgrade
// opportunistically after a successful login.
//
// # What this package must NOT do
//
//   - Persist anything; storage belongs to the account provider.
//   - Log, or otherwise emit, plaintext or hashes.
package password

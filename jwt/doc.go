// Package jwt mints and parses the platform console's bearer
// credentials. Ordinary platform tokens carry the account id, role, and
// session id with audience "platform"; impersonation tokens additionally
// carry the target tenant and user and a fixed short TTL.
package jwt

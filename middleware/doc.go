// Package middleware adapts platauth.Engine validation to net/http.
//
//   - [Guard] — bearer token validation plus a per-route permission check.
//   - [RequireReason] — justification header enforcement for mutating
//     console endpoints.
//
// The package translates HTTP semantics into Engine calls and nothing
// more: it never parses tokens or touches the stores itself.
package middleware

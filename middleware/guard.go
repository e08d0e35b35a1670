package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/venn-labs/platauth"
	"github.com/venn-labs/platauth/permission"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the identity injected by [Guard].
func AuthResultFromContext(ctx context.Context) (*platauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*platauth.AuthResult)
	return res, ok
}

// Guard validates the bearer token, checks that the caller's role grants
// every listed permission, and injects the identity into the request
// context. A bad token is 401; a valid token without the permissions is
// 403.
func Guard(engine *platauth.Engine, required ...permission.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := platauth.WithClientIP(r.Context(), clientIP(r))
			ctx = platauth.WithUserAgent(ctx, r.UserAgent())

			res, err := engine.Validate(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if len(required) > 0 {
				if err := engine.Registry().HasAll(res.Role, required); err != nil {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireReason rejects mutating requests whose X-Reason header does not
// carry a justification long enough for the engine's policy. Intended to
// wrap suspend, impersonate, and similar endpoints.
func RequireReason(engine *platauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || !engine.ValidateReason(r.Header.Get("X-Reason")) {
				http.Error(w, "a justification is required", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}

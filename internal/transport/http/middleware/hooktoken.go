package middleware

import (
	"context"
	"net/http"

	jwtinfra "github.com/go-phone-2fa/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "hook_claims"

// TokenVerifier checks a webhook token.
type TokenVerifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

// HookToken returns middleware that requires a valid ?token= issued for
// purpose on gateway callbacks and injects its claims into the context.
// The token authenticates the gateway and the registration it came from; it
// does not bind the originator, which the hook resolves against open
// requests itself. A nil verifier lets every request through.
func HookToken(verifier TokenVerifier, purpose string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing webhook token")
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired webhook token")
				return
			}
			if claims.Purpose != purpose {
				writeJSONError(w, http.StatusUnauthorized, "webhook token issued for another purpose")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts webhook token claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

package authx

import (
	"context"
	"net/http"

	"securities-sales-crm/shared/httpx"
)

// TokenVerifier is satisfied by both JWTVerifier (remote JWKS) and Signer
// (local key, identity service only).
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (AuthContext, error)
}

type AuthMiddleware struct {
	Verifier TokenVerifier
	Skip     func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.Verifier == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "auth verifier not configured", nil)
			return
		}

		token := BearerToken(r)
		if token == "" {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		auth, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
			return
		}

		ctx := WithAuth(r.Context(), auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles guards a handler with a role check. An authenticated caller
// without any of the roles gets 403, not 401.
func RequireRoles(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, ok := FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
			return
		}
		if len(roles) > 0 && !auth.HasAnyRole(roles...) {
			httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
			return
		}
		next(w, r)
	}
}

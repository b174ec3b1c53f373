// Package middleware provides HTTP middleware for authentication and
// rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"classboard/internal/auth"
)

// context key type for storing auth claims in context
type claimsContextKey struct{}

// ClaimsFromContext extracts auth claims from the context, if present.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	v := ctx.Value(claimsContextKey{})
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// WithClaims returns a context carrying the given claims. Used by the
// websocket handler after verifying the upgrade token, and by tests.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
}

// Authenticate enforces JWT authentication and attaches the verified
// claims to the request context.
func Authenticate(j *auth.JWTManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		token := BearerToken(header)
		if token == "" {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		claims, err := j.VerifyToken(token)
		if err != nil {
			http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

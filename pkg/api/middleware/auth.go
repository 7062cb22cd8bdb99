// Package middleware provides HTTP middleware for the eec services.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/internal/telemetry"
	"github.com/eecworkbench/eec/pkg/api/auth"
	"github.com/eecworkbench/eec/pkg/api/handlers"
)

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// Authenticate verifies the bearer token with v and stores the principal in
// the request context. Missing or rejected tokens get 401; an unreachable
// auth service gets 503.
func Authenticate(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				handlers.Unauthorized(w, "Authorization header required")
				return
			}

			p, err := v.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrVerifierUnavailable) {
					logger.WarnCtx(r.Context(), "Token verification unavailable", logger.Err(err))
					handlers.ServiceUnavailable(w, "authentication service unavailable")
					return
				}
				handlers.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			if lc := logger.FromContext(ctx); lc != nil {
				ctx = logger.WithContext(ctx, lc.WithUser(p.Username))
			}
			trace.SpanFromContext(ctx).SetAttributes(telemetry.Username(p.Username))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScopes blocks callers that do not satisfy the scope rule: admin
// passes, everyone else must hold every listed scope. Must be used after
// Authenticate.
func RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				handlers.Unauthorized(w, "Authentication required")
				return
			}
			if !p.Can(scopes...) {
				handlers.Forbidden(w, "missing scope: "+strings.Join(scopes, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireScopes("admin").
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScopes("admin")
}

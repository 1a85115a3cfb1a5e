package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"onramp/pkg/platform/token"
	"onramp/pkg/requestcontext"
)

// Validator checks an access token and returns its claims.
type Validator interface {
	Validate(tokenString string) (*token.Claims, error)
}

type roleKey struct{}

// Role retrieves the authenticated principal's role. Returns "" if the
// request was not authenticated.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey{}).(string); ok {
		return role
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token. On success the
// subject becomes the request actor and the role is stored for RequireRole.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "request without bearer token",
					"request_id", requestcontext.RequestID(ctx), "path", r.URL.Path)
				writeUnauthorized(w, "missing or malformed Authorization header")
				return
			}
			claims, err := validator.Validate(raw)
			if err != nil {
				logger.WarnContext(ctx, "rejecting invalid token",
					"request_id", requestcontext.RequestID(ctx), "error", err)
				writeUnauthorized(w, "invalid or expired token")
				return
			}
			ctx = requestcontext.WithActor(ctx, claims.Role+":"+claims.Subject)
			ctx = context.WithValue(ctx, roleKey{}, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group on one of the given roles. Must run after
// RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := allowed[Role(ctx)]; !ok {
				logger.WarnContext(ctx, "refusing insufficient role",
					"request_id", requestcontext.RequestID(ctx),
					"role", Role(ctx), "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"insufficient role"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

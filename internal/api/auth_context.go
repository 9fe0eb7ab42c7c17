package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/listenupapp/tasksync-server/internal/auth"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// ownerKey is the context key for the authenticated owner.
const ownerKey ctxKey = "owner"

// GetOwner returns the authenticated owner from context.
// Returns 401 error if the request carried no valid token.
func GetOwner(ctx context.Context) (string, error) {
	owner, ok := ctx.Value(ownerKey).(string)
	if !ok || owner == "" {
		return "", huma.Error401Unauthorized("Authentication required")
	}
	return owner, nil
}

func setOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// authMiddleware returns a middleware that validates Bearer tokens and stores the owner in context.
// If no token is present or invalid, continues without an owner.
// Handlers use GetOwner to check authentication.
func authMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(setOwner(r.Context(), claims.Owner)))
		})
	}
}

package http

import (
	"context"

	"github.com/example/courtboard/internal/auth"
)

type contextKey string

const adminContextKey contextKey = "admin"

// ContextWithAdmin returns a derived context carrying verified admin claims.
func ContextWithAdmin(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, adminContextKey, claims)
}

// AdminFromContext extracts admin claims attached by RequireAdmin.
func AdminFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(adminContextKey).(auth.Claims)
	return claims, ok
}

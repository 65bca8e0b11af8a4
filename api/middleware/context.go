package middleware

import (
	"context"

	"github.com/angelmondragon/marketcore/pkg/auth"
)

type contextKey string

const ctxAuth contextKey = "auth_context"

// AuthFromContext returns the caller identity seeded by Auth. Requests
// without credentials yield the anonymous zero value.
func AuthFromContext(ctx context.Context) auth.Context {
	if ctx == nil {
		return auth.Context{}
	}
	if v, ok := ctx.Value(ctxAuth).(auth.Context); ok {
		return v
	}
	return auth.Context{}
}

// WithAuth injects the caller identity into the context.
func WithAuth(ctx context.Context, actor auth.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAuth, actor)
}

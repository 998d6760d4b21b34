package ai

import "context"

type userKey struct{}

// WithUser attaches the end-user id to generation calls made with ctx.
// Providers that support abuse attribution forward it upstream.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the id set by WithUser.
func UserFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userKey{}).(string)
	return v
}

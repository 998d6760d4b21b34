package util

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type requestIDKey struct{}

const requestIDHeader = "X-Request-Id"

// WithRequestID reuses the caller's X-Request-Id or mints one, echoes it on
// the response and stores it in the request context together with a logger
// that carries it as request_id.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = NewID()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = ContextWithLogger(ctx, slog.Default().With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const clientKey contextKey = "client"

// Anonymous identifies callers when API keys are not configured.
const Anonymous = "anonymous"

func setClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// GetClient returns the caller identity set by Auth.
func GetClient(r *http.Request) (string, bool) {
	c, ok := r.Context().Value(clientKey).(string)
	return c, ok
}

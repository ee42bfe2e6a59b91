package handlers

import (
	"context"
)

// contextKey keeps request-scoped values from colliding with keys set
// by other packages.
type contextKey string

// userIDKey carries the authenticated user's id through a request.
const userIDKey contextKey = "mintfolio:user-id"

// withUserID stamps the authenticated user's id onto the context.
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFrom extracts the authenticated user's id, if any.
func userIDFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

package store

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// AccountIDKey is the context key for the tenant account UUID resolved
	// from the request's bearer token (internal/http auth middleware).
	AccountIDKey contextKey = "goclaw_account_id"
)

// WithAccountID returns a new context with the given tenant account UUID.
func WithAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, AccountIDKey, id)
}

// AccountIDFromContext extracts the tenant account UUID from context.
// Returns uuid.Nil if not set.
func AccountIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(AccountIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

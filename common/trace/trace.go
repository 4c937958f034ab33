// Package trace carries request correlation IDs across the message →
// parse → execute boundary so every log line of a turn can be joined.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type requestKey struct{}

// NewRequestID returns a fresh request ID ("r_" + uuid v4).
func NewRequestID() string {
	return "r_" + uuid.NewString()
}

// NewConversationID returns a fresh conversation ID ("c_" + uuid v4).
func NewConversationID() string {
	return "c_" + uuid.NewString()
}

// WithRequestID returns a child context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// FromContext extracts the request ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestKey{}).(string); ok {
		return v
	}
	return ""
}

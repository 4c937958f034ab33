// Package nlp provides the model-backed intent parser.
//
// The parser sends the message, the current date/time and the family's
// timezone to an external completion service and asks for a reply that
// matches IntentSchema.  The reply is repaired, validated and converted to
// an intent.Intent.  Every failure (transport, timeout, rate limit, schema
// mismatch) is reported as intent.ErrNeedsFallback so the deterministic
// parser can take over; nothing escapes as a panic or a user-visible error.
//
// Security invariants:
//   - The model only proposes an interpretation; it never calls tools.
//   - The model never sees confirmation tokens or other families' data.
//   - A per-user limiter bounds spend; throttled users get the fallback.
package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrRateLimit is returned by a Completer when the upstream API reports a
// rate-limiting condition (HTTP 429).
var ErrRateLimit = errors.New("nlp: upstream rate limit exceeded")

// ErrMalformedOutput is returned when the completion cannot be interpreted
// as an intent (JSON that cannot be repaired, schema violation, missing
// required fields).
var ErrMalformedOutput = errors.New("nlp: malformed response from model")

// ErrThrottled is returned when the per-user limiter rejects a call before
// it reaches the completion service.
var ErrThrottled = errors.New("nlp: per-user model call limit reached")

// CompletionRequest is one structured-output call.
type CompletionRequest struct {
	// System is the instruction prompt.
	System string
	// User is the household member's message.
	User string
	// SchemaName labels the schema for providers that require a name.
	SchemaName string
	// Schema is the JSON Schema the reply must satisfy.
	Schema json.RawMessage
}

// Completion is the raw reply of the completion service.
type Completion struct {
	// Content is the model output; expected to be a JSON object.
	Content string
	// Model is the model name echoed by the provider, if any.
	Model string
	// Latency is the observed round-trip time.
	Latency time.Duration
}

// Completer is the narrow contract the parser needs from a language model
// backend.  Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (*Completion, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	return f(ctx, req)
}

// Package approvals decides when a calendar write needs the user's explicit
// go-ahead, and holds the single-use confirmation tokens that stand for those
// pending writes.
//
// A write that needs confirmation is parked as a PendingAction under an
// unguessable token.  The owner confirms by presenting the token on a later
// turn; Consume hands the action back exactly once and forgets it.  Every
// failure (unknown token, wrong owner, expired) looks the same to the caller.
package approvals

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a pending action can be confirmed.
const DefaultTTL = 5 * time.Minute

// InvalidConfirmationMessage is the only text a caller ever sees when a
// confirmation fails, whatever the underlying reason.
const InvalidConfirmationMessage = "That confirmation is invalid or has expired. Please make the request again."

// ErrTokenGeneration is returned when the system entropy source fails.
var ErrTokenGeneration = errors.New("approvals: generate token")

// PendingAction is a tool call awaiting confirmation.
type PendingAction struct {
	Token          string
	OwnerUserID    string
	OwnerFamilyID  string
	RequestID      string
	ConversationID string

	ToolName string
	Input    map[string]any

	// Description is the human-readable summary shown in the prompt.
	Description string
	Destructive bool

	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt is CreatedAt + TTL.
func (a *PendingAction) ExpiresAt() time.Time {
	return a.CreatedAt.Add(a.TTL)
}

// NewAction holds what Create needs to park a tool call.
type NewAction struct {
	OwnerUserID    string
	OwnerFamilyID  string
	RequestID      string
	ConversationID string
	ToolName       string
	Input          map[string]any
	Description    string
	Destructive    bool
	// TTL of zero means the store default.
	TTL time.Duration
}

// Reason explains a failed Consume.  It is for server-side logs only.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonUnknown    Reason = "unknown"
	ReasonMismatched Reason = "mismatched"
	ReasonExpired    Reason = "expired"
	// ReasonStorage means the backing store failed; Consume fails closed.
	ReasonStorage Reason = "storage"
)

// ConsumeResult is the outcome of Consume.  Action is set only when Found.
type ConsumeResult struct {
	Found  bool
	Action *PendingAction
	Reason Reason
	// Err is set with ReasonStorage.
	Err error
}

// Store creates and atomically consumes pending actions.
//
// Implementations must be safe for concurrent use: of any number of racing
// Consume calls for one token, at most one reports Found.
type Store interface {
	Create(ctx context.Context, a NewAction) (*PendingAction, error)
	Consume(ctx context.Context, token, userID, familyID string) ConsumeResult
}

// Option configures a store.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL for actions created without their own TTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now.  Tests use it to step over the TTL.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

package intent

import (
	"log/slog"
	"time"
)

// AwaitingInput names the clarification slot a previous turn left open.
type AwaitingInput string

const (
	AwaitingDateTime AwaitingInput = "dateTime"
	AwaitingTime     AwaitingInput = "time"
)

// PendingEvent is the partial event echoed between turns while a
// clarification is outstanding.  It travels through the response payload,
// so it is JSON-tagged.
type PendingEvent struct {
	Title     string   `json:"title,omitempty"`
	Date      string   `json:"date,omitempty"`
	Time      string   `json:"time,omitempty"`
	Location  string   `json:"location,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
	AllDay    bool     `json:"allDay,omitempty"`
}

// PreviousContext carries the open clarification slot from the prior turn.
type PreviousContext struct {
	AwaitingInput AwaitingInput `json:"awaitingInput"`
	PendingEvent  *PendingEvent `json:"pendingEvent,omitempty"`
}

// Active reports whether a clarification slot is open.
func (p *PreviousContext) Active() bool {
	return p != nil && (p.AwaitingInput == AwaitingDateTime || p.AwaitingInput == AwaitingTime)
}

// RunContext is supplied by the caller for every message and confirmation.
// The core keeps no session state of its own: anything carried between
// turns arrives here.
type RunContext struct {
	UserID         string
	FamilyID       string
	FamilyMemberID string
	RequestID      string
	ConversationID string
	// Timezone is an IANA name; empty or unknown means UTC.
	Timezone string
	Logger   *slog.Logger
	Previous *PreviousContext
	// Now pins the reference instant.  Zero means time.Now().
	Now time.Time
}

// Log returns the request logger, or slog.Default() when none was given.
func (rc RunContext) Log() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}

// Reference returns the instant relative phrases are resolved against.
func (rc RunContext) Reference() time.Time {
	if rc.Now.IsZero() {
		return time.Now()
	}
	return rc.Now
}

// Package tools defines the contract between the assistant core and the
// component that actually reads and writes the family calendar.
//
// The core never stores events itself.  It builds a tool call (a name plus a
// JSON-shaped input map), hands it to an Executor, and reads back a Result.
package tools

import "context"

// Tool names understood by an Executor.
const (
	CalendarCreate = "calendar.create"
	CalendarSearch = "calendar.search"
	CalendarUpdate = "calendar.update"
	CalendarDelete = "calendar.delete"
	PrefsGetBulk   = "prefs.getBulk"
)

// Preference keys served by prefs.getBulk.
const (
	PrefDefaultDuration   = "calendar.defaultDuration"
	PrefPreferredTimezone = "calendar.preferredTimezone"
	PrefNamingConvention  = "calendar.namingConvention"
	PrefDefaultReminder   = "calendar.defaultReminder"
	PrefWorkHoursStart    = "calendar.workHoursStart"
	PrefWorkHoursEnd      = "calendar.workHoursEnd"
)

// CalendarPrefs is the full key set the executor asks for.
var CalendarPrefs = []string{
	PrefDefaultDuration,
	PrefPreferredTimezone,
	PrefNamingConvention,
	PrefDefaultReminder,
	PrefWorkHoursStart,
	PrefWorkHoursEnd,
}

// Result is what an Executor returns for one call.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Failed returns an unsuccessful Result carrying msg.
func Failed(msg string) Result {
	return Result{Error: msg}
}

// OK returns a successful Result carrying data.
func OK(data map[string]any) Result {
	return Result{Success: true, Data: data}
}

// Executor runs one tool call.  It reports failure through Result rather
// than an error so that the caller can always relay a message to the user.
type Executor interface {
	Execute(ctx context.Context, name string, input map[string]any) Result
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, name string, input map[string]any) Result

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, name string, input map[string]any) Result {
	return f(ctx, name, input)
}

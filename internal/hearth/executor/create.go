package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

// Bounds on the calendar.defaultDuration preference, in minutes.
const (
	minDurationPref = 5
	maxDurationPref = 24 * 60
)

func (t *turn) create(ctx context.Context, c *intent.CreatePayload, confidence float64) Result {
	if c.StartAt == nil || c.NeedsClarification != intent.ClarifyNone {
		return t.clarify(c)
	}

	loc := t.loc()
	start := c.StartAt.UTC()
	var end time.Time
	switch {
	case c.EndAt != nil && c.EndAt.After(start):
		end = c.EndAt.UTC()
	case c.AllDay:
		end = start.In(loc).AddDate(0, 0, 1).UTC()
	default:
		end = start.Add(t.defaultDuration(ctx))
	}

	input := map[string]any{
		tools.FamilyKey: t.rc.FamilyID,
		"createdBy":     t.rc.FamilyMemberID,
		"title":         c.Title,
		"startAt":       start.Format(time.RFC3339),
		"endAt":         end.Format(time.RFC3339),
		"allDay":        c.AllDay,
	}
	if c.Location != "" {
		input["location"] = c.Location
	}
	if c.Notes != "" {
		input["notes"] = c.Notes
	}
	if len(c.Attendees) > 0 {
		input["attendees"] = c.Attendees
	}

	desc := fmt.Sprintf("add %q %s", c.Title, formatWhen(start, loc, c.AllDay))
	if len(c.Attendees) > 0 {
		desc += " with " + joinNames(c.Attendees)
	}
	return t.dispatch(ctx, toolCall{Tool: tools.CalendarCreate, Input: input, Description: desc}, confidence)
}

// clarify asks for the missing date or time and hands the partial event back
// to the client for the next turn.
func (t *turn) clarify(c *intent.CreatePayload) Result {
	pe := &intent.PendingEvent{
		Title:     c.Title,
		Date:      c.Date,
		Time:      c.Time,
		Location:  c.Location,
		Notes:     c.Notes,
		Attendees: c.Attendees,
		AllDay:    c.AllDay,
	}
	loc := t.loc()
	name := "it"
	if c.Title != "" {
		name = strconv.Quote(c.Title)
	}

	var (
		awaiting intent.AwaitingInput
		text     string
	)
	day, err := time.ParseInLocation("2006-01-02", c.Date, loc)
	if c.NeedsClarification == intent.ClarifyTime && err == nil {
		awaiting = intent.AwaitingTime
		text = fmt.Sprintf("What time is %s on %s?", name, formatDay(day, loc))
	} else {
		awaiting = intent.AwaitingDateTime
		if clock := formatClockText(c.Time); clock != "" {
			text = fmt.Sprintf("Which day is %s at %s?", name, clock)
		} else {
			text = fmt.Sprintf("When is %s? Tell me the day and time.", name)
		}
	}

	t.log.Info("executor: clarification needed", "awaiting", awaiting)
	return t.result(Result{
		Text: text,
		Payload: map[string]any{
			"awaitingInput": string(awaiting),
			"pendingEvent":  pe,
		},
	})
}

// defaultDuration reads calendar.defaultDuration (minutes) for the family,
// falling back to the executor default when the lookup fails or the value
// is unusable.
func (t *turn) defaultDuration(ctx context.Context) time.Duration {
	r := t.call(ctx, tools.PrefsGetBulk, map[string]any{
		tools.FamilyKey: t.rc.FamilyID,
		"keys":          tools.CalendarPrefs,
	})
	if !r.Success {
		return t.e.defaultDuration
	}
	if mins, ok := minutes(tools.DecodePrefs(r.Data)[tools.PrefDefaultDuration]); ok {
		return time.Duration(mins) * time.Minute
	}
	return t.e.defaultDuration
}

func minutes(v any) (int, bool) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	if n < minDurationPref || n > maxDurationPref {
		return 0, false
	}
	return n, true
}

// PreviousFromPayload extracts the clarification slot from a Result payload,
// for clients that echo it back in-process.  It returns nil when no
// clarification is open.
func PreviousFromPayload(payload map[string]any) *intent.PreviousContext {
	awaiting, _ := payload["awaitingInput"].(string)
	if awaiting == "" {
		return nil
	}
	prev := &intent.PreviousContext{AwaitingInput: intent.AwaitingInput(awaiting)}
	switch pe := payload["pendingEvent"].(type) {
	case *intent.PendingEvent:
		cp := *pe
		prev.PendingEvent = &cp
	case map[string]any:
		// Payload that went through JSON on its way back.
		b, err := json.Marshal(pe)
		if err == nil {
			var decoded intent.PendingEvent
			if json.Unmarshal(b, &decoded) == nil {
				prev.PendingEvent = &decoded
			}
		}
	}
	return prev
}

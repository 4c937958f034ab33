package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

func (t *turn) update(ctx context.Context, u *intent.UpdatePayload, confidence float64) Result {
	name := u.EventTitle
	if name == "" {
		name = "that event"
	}
	if u.Patch.Empty() {
		return t.result(Result{Text: fmt.Sprintf("What should I change about %q? For example, \"move it to friday 3pm\".", name)})
	}

	var target tools.Event
	switch {
	case u.EventID != "" && !needsCurrent(u.Patch):
		target = tools.Event{ID: u.EventID, Title: u.EventTitle}
	default:
		ev, res, ok := t.resolveTarget(ctx, u)
		if !ok {
			return res
		}
		target = ev
	}

	input, desc, err := t.patchInput(target, u.Patch)
	if err != nil {
		t.log.Warn("executor: bad patch", "err", err)
		return t.result(Result{Text: fmt.Sprintf("I couldn't work out the new time for %q.", name)})
	}
	return t.dispatch(ctx, toolCall{Tool: tools.CalendarUpdate, Input: input, Description: desc}, confidence)
}

// needsCurrent reports whether applying p requires the event's current
// start and end.
func needsCurrent(p intent.Patch) bool {
	return p.KeepTime || (p.StartAt == nil && p.Time != "") || (p.StartAt != nil && p.EndAt == nil)
}

// resolveTarget finds the one event u refers to.  When it cannot, the
// returned Result is the not-found or disambiguation reply.
func (t *turn) resolveTarget(ctx context.Context, u *intent.UpdatePayload) (tools.Event, Result, bool) {
	input := map[string]any{tools.FamilyKey: t.rc.FamilyID}
	if u.EventID != "" {
		input["id"] = u.EventID
	} else {
		input["query"] = u.EventTitle
	}
	r := t.call(ctx, tools.CalendarSearch, input)
	if !r.Success {
		return tools.Event{}, t.result(Result{Text: "I couldn't look up that event: " + r.Error}), false
	}
	sr, err := tools.DecodeSearch(r.Data)
	if err != nil {
		return tools.Event{}, t.result(Result{Text: "I couldn't read your calendar: " + err.Error()}), false
	}

	switch len(sr.Events) {
	case 0:
		label := u.EventTitle
		if label == "" {
			label = u.EventID
		}
		return tools.Event{}, t.result(Result{Text: fmt.Sprintf("I couldn't find an event called %q.", label)}), false
	case 1:
		return sr.Events[0], Result{}, true
	}

	ranked := rankCandidates(u.EventTitle, sr.Events)
	return tools.Event{}, t.disambiguate(u.EventTitle, ranked, sr.Total), false
}

func (t *turn) disambiguate(title string, candidates []tools.Event, total int) Result {
	loc := t.loc()
	if total < len(candidates) {
		total = len(candidates)
	}
	shown := candidates
	if len(shown) > maxCandidates {
		shown = shown[:maxCandidates]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d events matching %q. Which one do you mean?", total, title)
	listed := make([]map[string]any, 0, len(shown))
	for i, ev := range shown {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, ev.Title, formatAt(ev.StartAt, loc, ev.AllDay))
		listed = append(listed, ev.Map())
	}
	if more := total - len(shown); more > 0 {
		fmt.Fprintf(&b, "\n+%d more", more)
	}
	return t.result(Result{Text: b.String(), Payload: map[string]any{"candidates": listed}})
}

// rankCandidates orders events by fuzzy similarity of their title to query.
// Events the matcher does not score keep their original order at the end.
func rankCandidates(query string, events []tools.Event) []tools.Event {
	if query == "" {
		return events
	}
	titles := make([]string, len(events))
	for i, ev := range events {
		titles[i] = strings.ToLower(ev.Title)
	}
	matches := fuzzy.Find(strings.ToLower(query), titles)

	out := make([]tools.Event, 0, len(events))
	used := make([]bool, len(events))
	for _, m := range matches {
		out = append(out, events[m.Index])
		used[m.Index] = true
	}
	for i, ev := range events {
		if !used[i] {
			out = append(out, ev)
		}
	}
	return out
}

// patchInput builds the calendar.update input for target and the sentence
// describing it.
func (t *turn) patchInput(target tools.Event, p intent.Patch) (map[string]any, string, error) {
	loc := t.loc()
	patch := map[string]any{}
	var parts []string

	if p.Title != "" {
		patch["title"] = p.Title
		parts = append(parts, fmt.Sprintf("rename it to %q", p.Title))
	}
	if p.Location != "" {
		patch["location"] = p.Location
		parts = append(parts, "set the location to "+p.Location)
	}

	start, end, moved, err := newTimes(target, p, loc)
	if err != nil {
		return nil, "", err
	}
	if moved {
		patch["startAt"] = start.UTC().Format(time.RFC3339)
		if end != nil {
			patch["endAt"] = end.UTC().Format(time.RFC3339)
		}
		parts = append(parts, "move it to "+formatAt(start, loc, target.AllDay))
	}

	input := map[string]any{
		tools.FamilyKey: t.rc.FamilyID,
		"eventId":       target.ID,
		"patch":         patch,
	}
	title := target.Title
	if title == "" {
		title = target.ID
	}
	return input, fmt.Sprintf("update %q: %s", title, strings.Join(parts, " and ")), nil
}

// newTimes applies the time fields of p to target.  A move keeps the event's
// duration unless p sets its own end.
func newTimes(target tools.Event, p intent.Patch, loc *time.Location) (time.Time, *time.Time, bool, error) {
	var start time.Time
	switch {
	case p.StartAt != nil && p.KeepTime:
		day := p.StartAt.In(loc)
		cur := target.StartAt.In(loc)
		start = time.Date(day.Year(), day.Month(), day.Day(), cur.Hour(), cur.Minute(), 0, 0, loc)
	case p.StartAt != nil:
		start = *p.StartAt
	case p.Time != "":
		h, m, err := parseHHMM(p.Time)
		if err != nil {
			return time.Time{}, nil, false, err
		}
		cur := target.StartAt.In(loc)
		start = time.Date(cur.Year(), cur.Month(), cur.Day(), h, m, 0, 0, loc)
	default:
		return time.Time{}, nil, false, nil
	}

	var end *time.Time
	switch {
	case p.EndAt != nil && p.EndAt.After(start):
		e := *p.EndAt
		end = &e
	case target.Duration() > 0:
		e := start.Add(target.Duration())
		end = &e
	}
	return start, end, true, nil
}

func parseHHMM(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(s, ":")
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if !ok || err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("executor: invalid clock time %q", s)
	}
	return h, m, nil
}

package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

func (t *turn) search(ctx context.Context, s *intent.SearchPayload) Result {
	r := t.call(ctx, tools.CalendarSearch, searchInput(t.rc.FamilyID, s))
	if !r.Success {
		return t.result(Result{Text: "I couldn't search your calendar: " + r.Error})
	}
	sr, err := tools.DecodeSearch(r.Data)
	if err != nil {
		t.log.Error("executor: decode search result", "err", err)
		return t.result(Result{Text: "I couldn't read your calendar: " + err.Error()})
	}

	loc := t.loc()
	if sr.Total == 0 {
		return t.result(Result{Text: emptySearchText(s, loc)})
	}

	var b strings.Builder
	if s.From != nil && s.To != nil {
		fmt.Fprintf(&b, "Here's what's on %s:", describeRange(*s.From, *s.To, loc))
	} else {
		b.WriteString("Here's what I found:")
	}
	shown := sr.Events
	if len(shown) > maxSearchResults {
		shown = shown[:maxSearchResults]
	}
	for _, ev := range shown {
		b.WriteString("\n- ")
		b.WriteString(eventLine(ev, loc))
	}
	if more := sr.Total - len(shown); more > 0 {
		fmt.Fprintf(&b, "\n+%d more", more)
	}

	return t.result(Result{
		Text:    b.String(),
		Payload: map[string]any{"events": sr.Events, "total": sr.Total},
	})
}

func searchInput(familyID string, s *intent.SearchPayload) map[string]any {
	in := map[string]any{tools.FamilyKey: familyID}
	if s.Query != "" {
		in["query"] = s.Query
	}
	if s.From != nil {
		in["from"] = s.From.UTC().Format(time.RFC3339)
	}
	if s.To != nil {
		in["to"] = s.To.UTC().Format(time.RFC3339)
	}
	if s.Attendee != "" {
		in["attendee"] = s.Attendee
	}
	return in
}

// emptySearchText tells "nothing in this range" apart from "nothing matched".
func emptySearchText(s *intent.SearchPayload, loc *time.Location) string {
	switch {
	case s.From != nil && s.To != nil && s.Query == "" && s.Attendee == "":
		return fmt.Sprintf("You have nothing scheduled %s.", describeRangePhrase(*s.From, *s.To, loc))
	case s.From != nil && s.To != nil:
		return fmt.Sprintf("I couldn't find any matching events %s.", describeRangePhrase(*s.From, *s.To, loc))
	case s.Query != "":
		return fmt.Sprintf("I couldn't find any events matching %q.", s.Query)
	case s.Attendee != "":
		return fmt.Sprintf("I couldn't find any events with %s.", s.Attendee)
	default:
		return "I couldn't find any events."
	}
}

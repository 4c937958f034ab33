package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/hearth/internal/hearth/tools"
)

const (
	dayLayout   = "Mon, Jan 2"
	clockLayout = "3:04 PM"
)

func formatDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// formatWhen renders "on Tue, Jan 2 at 3:00 PM", or "on Tue, Jan 2 (all day)".
func formatWhen(t time.Time, loc *time.Location, allDay bool) string {
	return "on " + formatAt(t, loc, allDay)
}

func formatAt(t time.Time, loc *time.Location, allDay bool) string {
	if allDay {
		return formatDay(t, loc) + " (all day)"
	}
	lt := t.In(loc)
	return lt.Format(dayLayout) + " at " + lt.Format(clockLayout)
}

func describeWhen(ev tools.Event, loc *time.Location) string {
	s := formatWhen(ev.StartAt, loc, ev.AllDay)
	if ev.Location != "" {
		s += " at " + ev.Location
	}
	return s
}

// formatClockText turns "15:04" into "3:04 PM".  Anything else yields "".
func formatClockText(hhmm string) string {
	if hhmm == "" {
		return ""
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return ""
	}
	return t.Format(clockLayout)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// describeRange renders "Tue, Jan 2" or "Sun, Dec 31 to Sat, Jan 6".
func describeRange(from, to time.Time, loc *time.Location) string {
	if sameDay(from, to, loc) {
		return formatDay(from, loc)
	}
	return formatDay(from, loc) + " to " + formatDay(to, loc)
}

// describeRangePhrase renders "on Tue, Jan 2" or "between Sun, Dec 31 and Sat, Jan 6".
func describeRangePhrase(from, to time.Time, loc *time.Location) string {
	if sameDay(from, to, loc) {
		return "on " + formatDay(from, loc)
	}
	return fmt.Sprintf("between %s and %s", formatDay(from, loc), formatDay(to, loc))
}

// eventLine renders one search hit.
func eventLine(ev tools.Event, loc *time.Location) string {
	var when string
	if ev.AllDay {
		when = formatDay(ev.StartAt, loc) + " (all day)"
	} else {
		lt := ev.StartAt.In(loc)
		when = lt.Format(dayLayout) + ", " + lt.Format(clockLayout)
	}
	line := when + ": " + ev.Title
	if ev.Location != "" {
		line += " @ " + ev.Location
	}
	return line
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

package datetime

import (
	"regexp"
	"time"
)

// Range is an inclusive time window.  Both ends are nil when the text
// carried no recognisable date.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Bounded reports whether both ends are set.
func (r Range) Bounded() bool { return r.From != nil && r.To != nil }

var (
	rangeTodayRe     = regexp.MustCompile(`(?i)\b(today|tonight)\b`)
	rangeTomorrowRe  = regexp.MustCompile(`(?i)\b(tomorrow|tmrw|tmr)\b`)
	rangeThisWeekRe  = regexp.MustCompile(`(?i)\bthis\s+week\b`)
	rangeNextWeekRe  = regexp.MustCompile(`(?i)\bnext\s+week\b`)
	rangeThisMonthRe = regexp.MustCompile(`(?i)\bthis\s+month\b`)
)

// ResolveRange maps a search phrase onto a calendar window in tz.  Weeks
// run Sunday through Saturday.  Anything other than the fixed phrases is
// resolved with Resolve and widened to that local day.
func ResolveRange(text string, ref time.Time, tz string) Range {
	s := Normalize(text)
	loc := Location(tz)
	now := ref.In(loc)
	today := StartOfDay(now, loc)

	switch {
	case rangeTodayRe.MatchString(s):
		return dayRange(today, loc)
	case rangeTomorrowRe.MatchString(s):
		return dayRange(today.AddDate(0, 0, 1), loc)
	case rangeThisWeekRe.MatchString(s):
		sunday := today.AddDate(0, 0, -int(today.Weekday()))
		return span(sunday, sunday.AddDate(0, 0, 7))
	case rangeNextWeekRe.MatchString(s):
		sunday := today.AddDate(0, 0, 7-int(today.Weekday()))
		return span(sunday, sunday.AddDate(0, 0, 7))
	case rangeThisMonthRe.MatchString(s):
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return span(first, first.AddDate(0, 1, 0))
	}

	res := Resolve(s, ref, tz)
	if !res.Found() {
		return Range{}
	}
	return dayRange(*res.Instant, loc)
}

func dayRange(t time.Time, loc *time.Location) Range {
	from := StartOfDay(t, loc).UTC()
	to := EndOfDay(t, loc).UTC()
	return Range{From: &from, To: &to}
}

// span covers [start, next) where next is the first instant after the range.
func span(start, next time.Time) Range {
	from := start.UTC()
	to := next.Add(-time.Millisecond).UTC()
	return Range{From: &from, To: &to}
}

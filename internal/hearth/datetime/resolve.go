// Package datetime turns relative, conversational date and time phrases
// ("tomorrow at 3pm", "next friday", "in 2 hours") into absolute instants
// and day ranges in the family's timezone.
//
// Both intent parsers share this resolver so the model-backed and the
// deterministic path agree on what "saturday 10am" means.  Resolution never
// fails loudly: text that matches no phrase family yields an empty
// Resolution with Confident=false.
package datetime

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Instant is the resolved point in time (UTC), nil when nothing matched.
	Instant *time.Time
	// Confident is false for vague phrases ("next week") and for misses.
	Confident bool
	// HasTime reports whether a clock time was part of the phrase.  When
	// false, Instant is the start of the resolved local day.
	HasTime bool
	// MatchedText is the date phrase as it appeared in the input.
	MatchedText string
	// ClockText is the clock phrase when it was not already part of
	// MatchedText ("3pm" in "3pm tomorrow").
	ClockText string
}

// Found reports whether an instant was resolved.
func (r Resolution) Found() bool { return r.Instant != nil }

// Spans returns the non-empty matched substrings, for callers that strip
// the temporal phrase out of a message.
func (r Resolution) Spans() []string {
	var out []string
	for _, s := range []string{r.MatchedText, r.ClockText} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Normalize applies NFKC and folds typographic quotes so that pasted or
// auto-corrected text ("10 a.m.", "Let’s") matches the ASCII patterns.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	return quoteFolder.Replace(s)
}

var quoteFolder = strings.NewReplacer("‘", "'", "’", "'", "“", `"`, "”", `"`)

// Location loads tz, falling back to UTC for empty or unknown names.
func Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidTimezone reports whether tz names a loadable IANA zone.
func ValidTimezone(tz string) bool {
	_, err := time.LoadLocation(tz)
	return err == nil
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last millisecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc).Add(-time.Millisecond)
}

var (
	relativeDayRe = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|tmrw|tmr)\b`)
	offsetRe      = regexp.MustCompile(`(?i)\bin\s+(\d{1,3}|an?|one|two|three|four|five|six|seven|eight|nine|ten|a\s+couple\s+of)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	weekdayRe     = regexp.MustCompile(`(?i)\b(?:on\s+)?(?:(next|this)\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday|mon|tues?|wed|thu(?:rs?)?|fri|sat|sun)\b`)
	nextWeekRe    = regexp.MustCompile(`(?i)\bnext\s+week\b`)
	isoRe         = regexp.MustCompile(`(?i)\b(\d{4})-(\d{2})-(\d{2})(?:[t ](\d{2}):(\d{2})(?::(\d{2})(?:\.\d+)?)?(z|[+-]\d{2}:?\d{2})?)?\b`)
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "sun": time.Sunday,
}

// family resolves one class of phrase.  s is normalised text, now is the
// reference instant already converted to loc.
type family func(s string, now time.Time, loc *time.Location) (Resolution, bool)

// families are tried in order; the first match wins so a specific phrase
// is never overridden by a later, more general one.
var families = []family{
	resolveRelativeDay,
	resolveOffset,
	resolveWeekday,
	resolveNextWeek,
	resolveISO,
}

// Resolve converts the first recognised date/time phrase in text into an
// absolute instant, interpreting wall-clock values in tz.
func Resolve(text string, ref time.Time, tz string) Resolution {
	s := Normalize(text)
	loc := Location(tz)
	now := ref.In(loc)
	for _, f := range families {
		if res, ok := f(s, now, loc); ok {
			return res
		}
	}
	return Resolution{}
}

func resolveRelativeDay(s string, now time.Time, loc *time.Location) (Resolution, bool) {
	m := relativeDayRe.FindStringSubmatchIndex(s)
	if m == nil {
		return Resolution{}, false
	}
	word := strings.ToLower(s[m[2]:m[3]])
	offset := 0
	if strings.HasPrefix(word, "tm") || word == "tomorrow" {
		offset = 1
	}
	day := time.Date(now.Year(), now.Month(), now.Day()+offset, 0, 0, 0, 0, loc)
	return withClock(s, m[0], m[1], day, word == "tonight", true), true
}

func resolveOffset(s string, now time.Time, loc *time.Location) (Resolution, bool) {
	m := offsetRe.FindStringSubmatchIndex(s)
	if m == nil {
		return Resolution{}, false
	}
	qty := strings.ToLower(s[m[2]:m[3]])
	n, err := strconv.Atoi(qty)
	if err != nil {
		if strings.HasPrefix(qty, "a couple") {
			n = 2
		} else {
			n = numberWords[qty]
		}
	}
	unit := strings.ToLower(s[m[4]:m[5]])
	matched := s[m[0]:m[1]]

	switch {
	case strings.HasPrefix(unit, "min"):
		t := now.Add(time.Duration(n) * time.Minute).UTC()
		return Resolution{Instant: &t, Confident: true, HasTime: true, MatchedText: matched}, true
	case strings.HasPrefix(unit, "h"):
		t := now.Add(time.Duration(n) * time.Hour).UTC()
		return Resolution{Instant: &t, Confident: true, HasTime: true, MatchedText: matched}, true
	case strings.HasPrefix(unit, "week"):
		n *= 7
	}
	day := time.Date(now.Year(), now.Month(), now.Day()+n, 0, 0, 0, 0, loc)
	return withClock(s, m[0], m[1], day, false, true), true
}

// resolveWeekday always lands 1–7 days ahead; a weekday equal to today
// means a week from today.  "next" pushes a result that falls within the
// coming 7 days one further week out.
func resolveWeekday(s string, now time.Time, loc *time.Location) (Resolution, bool) {
	m := weekdayRe.FindStringSubmatchIndex(s)
	if m == nil {
		return Resolution{}, false
	}
	target := weekdays[strings.ToLower(s[m[4]:m[5]])]
	ahead := (int(target) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	if m[2] >= 0 && strings.EqualFold(s[m[2]:m[3]], "next") && ahead < 7 {
		ahead += 7
	}
	day := time.Date(now.Year(), now.Month(), now.Day()+ahead, 0, 0, 0, 0, loc)
	return withClock(s, m[0], m[1], day, false, true), true
}

func resolveNextWeek(s string, now time.Time, loc *time.Location) (Resolution, bool) {
	m := nextWeekRe.FindStringIndex(s)
	if m == nil {
		return Resolution{}, false
	}
	day := time.Date(now.Year(), now.Month(), now.Day()+7, 0, 0, 0, 0, loc)
	return withClock(s, m[0], m[1], day, false, false), true
}

func resolveISO(s string, now time.Time, loc *time.Location) (Resolution, bool) {
	m := isoRe.FindStringSubmatch(s)
	if m == nil {
		return Resolution{}, false
	}
	idx := isoRe.FindStringIndex(s)
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	dayOfMonth, _ := strconv.Atoi(m[3])

	if m[4] == "" {
		day := time.Date(year, time.Month(month), dayOfMonth, 0, 0, 0, 0, loc)
		if day.Month() != time.Month(month) || day.Day() != dayOfMonth {
			return Resolution{}, false
		}
		return withClock(s, idx[0], idx[1], day, false, true), true
	}

	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])
	zone := loc
	if m[7] != "" {
		z, ok := parseOffset(m[7])
		if !ok {
			return Resolution{}, false
		}
		zone = z
	}
	t := time.Date(year, time.Month(month), dayOfMonth, hour, minute, sec, 0, zone)
	if t.Day() != dayOfMonth || t.Hour() != hour || t.Minute() != minute {
		return Resolution{}, false
	}
	t = t.UTC()
	return Resolution{Instant: &t, Confident: true, HasTime: true, MatchedText: s[idx[0]:idx[1]]}, true
}

func parseOffset(z string) (*time.Location, bool) {
	if strings.EqualFold(z, "z") {
		return time.UTC, true
	}
	sign := 1
	if z[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(z[1:], ":", "")
	if len(digits) != 4 {
		return nil, false
	}
	h, err1 := strconv.Atoi(digits[:2])
	mm, err2 := strconv.Atoi(digits[2:])
	if err1 != nil || err2 != nil || h > 14 || mm > 59 {
		return nil, false
	}
	return time.FixedZone("", sign*(h*3600+mm*60)), true
}

// withClock attaches a clock time to a resolved local day.  Explicit clock
// phrases anywhere in s win over a bare hour right after the date phrase.
func withClock(s string, start, end int, day time.Time, evening, confident bool) Resolution {
	res := Resolution{Confident: confident, MatchedText: s[start:end]}

	c, ok := findClock(s, evening)
	if !ok {
		if c, ok = adjacentClock(s[end:], evening); ok {
			res.MatchedText = s[start : end+len(c.text)]
			c.text = ""
		}
	}
	if ok {
		day = time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, day.Location())
		res.HasTime = true
		if c.text != "" && !strings.Contains(res.MatchedText, c.text) {
			res.ClockText = c.text
		}
	}
	t := day.UTC()
	res.Instant = &t
	return res
}

package datetime

import (
	"regexp"
	"strconv"
	"strings"
)

// clockRe matches an explicit clock phrase anywhere in a message: "noon", "3pm", "3:30 p.m.", "15:30", "at 7", "at 9 o'clock".
// A bare number only counts as a clock when introduced by "at".
var clockRe = regexp.MustCompile(
	`(?i)(?:\bat\s+)?\b(?:(noon|midday|midnight)|(\d{1,2})(?::([0-5]\d))?\s*(a\.?m|p\.?m)\b\.?|(\d{1,2}):([0-5]\d)|at\s+(\d{1,2})(?:\s*o'?clock)?)\b`,
)

// adjacentBareRe matches a bare hour immediately following a date phrase
// ("saturday 10", "tomorrow at 4"), which clockRe deliberately ignores.
var adjacentBareRe = regexp.MustCompile(`(?i)^\s+(?:at\s+)?(\d{1,2})(?::([0-5]\d))?\b`)

// unitAfterRe rejects an adjacent bare number that is really a quantity
// ("friday 3 kids", "tomorrow 2 hours").
var unitAfterRe = regexp.MustCompile(`(?i)^\s*(?:day|hour|hr|min|week|month|year|people|person|kid|child|time)`)

// wholeBareRe accepts a message that is nothing but an hour, which only
// makes sense as the answer to "what time?".
var wholeBareRe = regexp.MustCompile(`(?i)^\s*(?:at\s+)?(\d{1,2})(?::([0-5]\d))?\s*[.!]?\s*$`)

type clock struct {
	hour, minute int
	text         string
}

// ParseClock extracts the first clock time from text.  It accepts
// everything the resolver does plus a message consisting solely of an hour
// ("10", "at 4"), with the bare-hour PM rule applied.
func ParseClock(text string) (hour, minute int, ok bool) {
	s := Normalize(text)
	if c, found := findClock(s, false); found {
		return c.hour, c.minute, true
	}
	if m := wholeBareRe.FindStringSubmatch(s); m != nil {
		h, mm, valid := toClock(m[1], m[2], "", false)
		if valid {
			return h, mm, true
		}
	}
	return 0, 0, false
}

// MatchClock returns the first explicit clock phrase in text together with
// its 24h value, for callers that need to cut the phrase out.
func MatchClock(text string) (hour, minute int, matched string, ok bool) {
	c, found := findClock(Normalize(text), false)
	if !found {
		return 0, 0, "", false
	}
	return c.hour, c.minute, c.text, true
}

// findClock returns the first explicit clock phrase in s.  evening
// forces hours 1–11 without a marker into the PM half ("tonight at 8").
func findClock(s string, evening bool) (clock, bool) {
	for _, loc := range clockRe.FindAllStringSubmatchIndex(s, -1) {
		group := func(i int) string {
			if loc[2*i] < 0 {
				return ""
			}
			return strings.ToLower(s[loc[2*i]:loc[2*i+1]])
		}
		text := strings.TrimSpace(s[loc[0]:loc[1]])

		switch {
		case group(1) != "":
			h := 12
			if group(1) == "midnight" {
				h = 0
			}
			return clock{hour: h, text: text}, true
		case group(2) != "":
			if h, m, ok := toClock(group(2), group(3), group(4), evening); ok {
				return clock{hour: h, minute: m, text: text}, true
			}
		case group(5) != "":
			if h, m, ok := toClock(group(5), group(6), "", evening); ok {
				return clock{hour: h, minute: m, text: text}, true
			}
		case group(7) != "":
			if h, m, ok := toClock(group(7), "", "", evening); ok {
				return clock{hour: h, minute: m, text: text}, true
			}
		}
	}
	return clock{}, false
}

// adjacentClock looks for a bare hour right after a date phrase.  The
// returned text is the exact prefix of rest that was consumed.
func adjacentClock(rest string, evening bool) (clock, bool) {
	m := adjacentBareRe.FindStringSubmatchIndex(rest)
	if m == nil {
		return clock{}, false
	}
	if unitAfterRe.MatchString(rest[m[1]:]) {
		return clock{}, false
	}
	minute := ""
	if m[4] >= 0 {
		minute = rest[m[4]:m[5]]
	}
	h, mm, ok := toClock(rest[m[2]:m[3]], minute, "", evening)
	if !ok {
		return clock{}, false
	}
	return clock{hour: h, minute: mm, text: rest[:m[1]]}, true
}

// toClock converts matched pieces into a 24h clock.  Without a marker,
// hours 1–7 are read as PM ("at 3" is 15:00); 8–12 are kept as written.
func toClock(hourStr, minuteStr, meridiem string, evening bool) (int, int, bool) {
	h, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, false
	}
	m := 0
	if minuteStr != "" {
		if m, err = strconv.Atoi(minuteStr); err != nil || m > 59 {
			return 0, 0, false
		}
	}

	switch {
	case strings.HasPrefix(meridiem, "p"):
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h < 12 {
			h += 12
		}
	case strings.HasPrefix(meridiem, "a"):
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h == 12 {
			h = 0
		}
	default:
		if h > 23 {
			return 0, 0, false
		}
		if (h >= 1 && h <= 7) || (evening && h >= 1 && h < 12) {
			h += 12
		}
	}
	return h, m, true
}

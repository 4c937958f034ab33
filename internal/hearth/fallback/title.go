package fallback

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bdobrica/hearth/internal/hearth/datetime"
	"github.com/bdobrica/hearth/internal/hearth/intent"
)

const defaultTitle = "New event"

// buildCreate turns body (the message minus any leading create verb) and
// the date resolution into a create intent.  The temporal phrase,
// attendees, location and duration are cut out of body; what remains is
// the title.
func buildCreate(body string, res datetime.Resolution, tz string, base float64) intent.Intent {
	loc := datetime.Location(tz)
	work := " " + body + " "
	for _, span := range res.Spans() {
		work = strings.Replace(work, span, " ", 1)
	}

	var c intent.CreatePayload
	if !res.Found() {
		if h, m, matched, ok := datetime.MatchClock(work); ok {
			c.Time = fmt.Sprintf("%02d:%02d", h, m)
			work = strings.Replace(work, matched, " ", 1)
		}
	}
	if allDayRe.MatchString(work) {
		c.AllDay = true
		work = allDayRe.ReplaceAllString(work, " ")
	}

	var dur time.Duration
	if m := durationRe.FindStringSubmatchIndex(work); m != nil {
		dur = parseDuration(work[m[2]:m[3]], work[m[4]:m[5]])
		work = work[:m[0]] + " " + work[m[1]:]
	}

	if m := attendeesRe.FindStringSubmatchIndex(work); m != nil {
		if names := splitNames(work[m[2]:m[3]]); len(names) > 0 {
			c.Attendees = names
			work = work[:m[0]] + " " + work[m[1]:]
		}
	}

	if m := locationRe.FindStringSubmatchIndex(work); m != nil {
		place := strings.TrimSpace(work[m[2]:m[3]])
		if !notPlaceRe.MatchString(place) {
			c.Location = place
			work = work[:m[0]]
		}
	}

	title := cleanTitle(fillerWordsRe.ReplaceAllString(calendarWordRe.ReplaceAllString(work, " "), " "))
	short := utf8.RuneCountInString(title) < minTitleLen
	if title == "" {
		title = defaultTitle
	}
	c.Title = capitalise(title)

	switch {
	case res.Found() && (res.HasTime || c.AllDay):
		start := *res.Instant
		if c.AllDay {
			start = datetime.StartOfDay(start, loc).UTC()
		} else if dur > 0 {
			end := start.Add(dur)
			c.EndAt = &end
		}
		c.StartAt = &start
	case res.Found():
		c.Date = res.Instant.In(loc).Format("2006-01-02")
		c.NeedsClarification = intent.ClarifyTime
	default:
		c.NeedsClarification = intent.ClarifyDate
	}

	return intent.NewCreate(c, penalise(base, !res.Confident, c.StartAt == nil, short))
}

// cleanTitle trims leftover prepositions, articles and punctuation from
// both ends and collapses whitespace.
func cleanTitle(s string) string {
	s = spacesRe.ReplaceAllString(strings.TrimSpace(s), " ")
	for {
		before := s
		s = strings.Trim(s, " ,.;:!?-–'\"")
		s = leadWordsRe.ReplaceAllString(s, "")
		s = trailWordsRe.ReplaceAllString(s, "")
		if s == before {
			return s
		}
	}
}

func capitalise(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func splitNames(s string) []string {
	var names []string
	for _, n := range nameSplitRe.Split(s, -1) {
		n = strings.TrimSpace(n)
		if n == "" || notNameRe.MatchString(n) {
			continue
		}
		names = append(names, n)
	}
	return names
}

func parseDuration(qty, unit string) time.Duration {
	qty = strings.ToLower(qty)
	var n float64
	switch {
	case strings.HasPrefix(qty, "half"):
		n = 0.5
	case qty == "a" || qty == "an" || qty == "one":
		n = 1
	case qty == "two":
		n = 2
	case qty == "three":
		n = 3
	case qty == "four":
		n = 4
	default:
		v, err := strconv.Atoi(qty)
		if err != nil {
			return 0
		}
		n = float64(v)
	}
	if strings.HasPrefix(strings.ToLower(unit), "h") {
		return time.Duration(n * float64(time.Hour))
	}
	return time.Duration(n * float64(time.Minute))
}

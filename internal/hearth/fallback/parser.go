// Package fallback implements the deterministic, pattern-based intent
// parser.
//
// Pattern classes are tried in a fixed order and the first match wins:
//
//  1. answers to an open clarification slot (date+time, or time only)
//  2. search phrasing ("what's on my calendar…", "when is…")
//  3. move / update phrasing ("move X to Y", "reschedule X")
//  4. create phrasing, including "event for saturday 10am kids basketball"
//     and filler phrasing ("I have to…")
//  5. an event keyword plus a temporal cue
//  6. unclear
//
// The parser never fails: anything it cannot place is Unclear.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/hearth/internal/hearth/datetime"
	"github.com/bdobrica/hearth/internal/hearth/intent"
)

// Parser is the deterministic intent.Parser.  The zero value is ready to
// use.
type Parser struct{}

// New returns a fallback Parser.
func New() *Parser { return &Parser{} }

// Parse implements intent.Parser.  The returned error is always nil.
func (p *Parser) Parse(_ context.Context, text string, rc intent.RunContext) (intent.Intent, error) {
	s := strings.TrimSpace(datetime.Normalize(text))
	ref := rc.Reference()

	if rc.Previous.Active() {
		return p.clarification(s, ref, rc.Timezone, rc.Previous), nil
	}
	if in, ok := p.classify(s, ref, rc.Timezone); ok {
		return in, nil
	}
	return intent.NewUnclear(confUnclear), nil
}

// classify runs pattern classes 2 through 5.
func (p *Parser) classify(s string, ref time.Time, tz string) (intent.Intent, bool) {
	for _, try := range []func(string, time.Time, string) (intent.Intent, bool){
		parseSearch,
		parseUpdate,
		parseCreate,
		parseKeyword,
	} {
		if in, ok := try(s, ref, tz); ok {
			return in, true
		}
	}
	return intent.Intent{}, false
}

// clarification fills the open slot from the answer.  Explicit search or
// move phrasing abandons the slot.  An answer with no usable temporal
// information is run through the remaining classes; if that also fails the
// same question is asked again.
func (p *Parser) clarification(s string, ref time.Time, tz string, prev *intent.PreviousContext) intent.Intent {
	if in, ok := parseSearch(s, ref, tz); ok {
		return in
	}
	if in, ok := parseUpdate(s, ref, tz); ok {
		return in
	}

	pe := intent.PendingEvent{}
	if prev.PendingEvent != nil {
		pe = *prev.PendingEvent
	}
	loc := datetime.Location(tz)
	res := datetime.Resolve(s, ref, tz)

	if prev.AwaitingInput == intent.AwaitingTime {
		if day, err := time.ParseInLocation("2006-01-02", pe.Date, loc); err == nil {
			switch {
			case res.Found() && res.HasTime:
				return answered(pe, *res.Instant, penalise(confClarification, !res.Confident, false, false))
			case !res.Found():
				if h, m, ok := datetime.ParseClock(s); ok {
					start := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc).UTC()
					return answered(pe, start, confClarification)
				}
			}
		}
	}

	if res.Found() {
		start := *res.Instant
		hasTime := res.HasTime
		if !hasTime && pe.Time != "" {
			if h, m, ok := datetime.ParseClock(pe.Time); ok {
				d := start.In(loc)
				start = time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc).UTC()
				hasTime = true
			}
		}
		if hasTime || pe.AllDay {
			return answered(pe, start, penalise(confClarification, !res.Confident, false, false))
		}
		// A date without a time: ask for the time next.
		c := fromPending(pe)
		c.Date = start.In(loc).Format("2006-01-02")
		c.NeedsClarification = intent.ClarifyTime
		return intent.NewCreate(c, penalise(confClarification, !res.Confident, true, false))
	}

	if in, ok := p.classify(s, ref, tz); ok {
		return in
	}

	c := fromPending(pe)
	c.NeedsClarification = intent.ClarifyDate
	if prev.AwaitingInput == intent.AwaitingTime && pe.Date != "" {
		c.NeedsClarification = intent.ClarifyTime
	}
	return intent.NewCreate(c, confReask)
}

func answered(pe intent.PendingEvent, start time.Time, confidence float64) intent.Intent {
	c := fromPending(pe)
	c.StartAt = &start
	return intent.NewCreate(c, confidence)
}

func fromPending(pe intent.PendingEvent) intent.CreatePayload {
	title := pe.Title
	if title == "" {
		title = defaultTitle
	}
	return intent.CreatePayload{
		Title:     title,
		Location:  pe.Location,
		Notes:     pe.Notes,
		Attendees: pe.Attendees,
		AllDay:    pe.AllDay,
		Date:      pe.Date,
		Time:      pe.Time,
	}
}

func parseSearch(s string, ref time.Time, tz string) (intent.Intent, bool) {
	if m := whenRe.FindStringSubmatch(s); m != nil {
		query := cleanTitle(m[1])
		if query != "" {
			return intent.NewSearch(intent.SearchPayload{Query: query}, confSearch), true
		}
	}

	lead := searchLeadRe.FindStringIndex(s)
	if lead == nil {
		return intent.Intent{}, false
	}
	// A date range after the lead is cue enough: "what do I have tomorrow?".
	r := datetime.ResolveRange(s, ref, tz)
	if !searchCueRe.MatchString(s) && !r.Bounded() {
		return intent.Intent{}, false
	}
	p := intent.SearchPayload{From: r.From, To: r.To}
	if m := aboutRe.FindStringSubmatch(s); m != nil {
		p.Query = cleanTitle(m[1])
	}
	if m := searchWhoRe.FindStringSubmatch(s[lead[1]:]); m != nil && !notNameRe.MatchString(m[1]) {
		p.Attendee = m[1]
	}
	return intent.NewSearch(p, confSearch), true
}

func parseUpdate(s string, ref time.Time, tz string) (intent.Intent, bool) {
	if m := renameRe.FindStringSubmatch(s); m != nil {
		title := cleanTitle(m[2])
		if title == "" {
			return intent.Intent{}, false
		}
		return intent.NewUpdate(intent.UpdatePayload{
			EventTitle: cleanTitle(m[1]),
			Patch:      intent.Patch{Title: capitalise(title)},
		}, confUpdate), true
	}

	m := moveRe.FindStringSubmatch(s)
	if m == nil {
		return intent.Intent{}, false
	}
	target := cleanTitle(m[1])
	if target == "" {
		return intent.Intent{}, false
	}
	up := intent.UpdatePayload{EventTitle: target}
	conf := confUpdate

	res := datetime.Resolve(m[2], ref, tz)
	switch {
	case m[2] == "":
		conf = penalise(conf, true, true, false)
	case !res.Found():
		if h, mm, ok := datetime.ParseClock(m[2]); ok {
			up.Patch.Time = fmt.Sprintf("%02d:%02d", h, mm)
			break
		}
		conf = penalise(conf, true, true, false)
	default:
		up.Patch.StartAt = res.Instant
		up.Patch.KeepTime = !res.HasTime
		conf = penalise(conf, !res.Confident, false, false)
	}
	return intent.NewUpdate(up, conf), true
}

func parseCreate(s string, ref time.Time, tz string) (intent.Intent, bool) {
	if loc := createVerbRe.FindStringIndex(s); loc != nil {
		res := datetime.Resolve(s, ref, tz)
		return buildCreate(s[loc[1]:], res, tz, confCreateVerb), true
	}

	if m := weekdayTitleRe.FindStringSubmatch(s); m != nil {
		res := datetime.Resolve(s, ref, tz)
		if !res.Found() {
			return intent.Intent{}, false
		}
		if !res.HasTime {
			if h, mm, ok := datetime.ParseClock("at " + m[1]); ok {
				loc := datetime.Location(tz)
				d := res.Instant.In(loc)
				t := time.Date(d.Year(), d.Month(), d.Day(), h, mm, 0, 0, loc).UTC()
				res.Instant = &t
				res.HasTime = true
			}
		}
		return buildCreate(m[2], res, tz, confWeekdayTitle), true
	}

	if loc := fillerLeadRe.FindStringIndex(s); loc != nil {
		res := datetime.Resolve(s, ref, tz)
		_, _, hasClock := datetime.ParseClock(s)
		if !res.Found() && !hasClock {
			return intent.Intent{}, false
		}
		return buildCreate(s[loc[1]:], res, tz, confFillerCreate), true
	}
	return intent.Intent{}, false
}

func parseKeyword(s string, ref time.Time, tz string) (intent.Intent, bool) {
	if !eventKeywordRe.MatchString(s) {
		return intent.Intent{}, false
	}
	res := datetime.Resolve(s, ref, tz)
	if !res.Found() {
		return intent.Intent{}, false
	}
	return buildCreate(s, res, tz, confKeyword), true
}

// penalise multiplies base by each applicable penalty factor.
func penalise(base float64, unconfidentDate, noStart, shortTitle bool) float64 {
	c := base
	if unconfidentDate {
		c *= penaltyUnconfidentDate
	}
	if noStart {
		c *= penaltyNoStart
	}
	if shortTitle {
		c *= penaltyShortTitle
	}
	return c
}

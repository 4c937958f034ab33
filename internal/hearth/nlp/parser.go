package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/hearth/internal/hearth/datetime"
	"github.com/bdobrica/hearth/internal/hearth/intent"
)

// DefaultTimeout bounds one model call, retries included.
const DefaultTimeout = 8 * time.Second

// LatencyObserver receives the round-trip time of successful model calls.
type LatencyObserver interface {
	ModelLatency(d time.Duration)
}

// Parser is the model-backed intent.Parser.
type Parser struct {
	completer Completer
	limiter   *UserLimiter
	timeout   time.Duration
	observer  LatencyObserver
}

// Option configures a Parser.
type Option func(*Parser)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Parser) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLimiter enables per-user throttling.
func WithLimiter(l *UserLimiter) Option {
	return func(p *Parser) { p.limiter = l }
}

// WithLatencyObserver reports model latency, typically to Prometheus.
func WithLatencyObserver(o LatencyObserver) Option {
	return func(p *Parser) { p.observer = o }
}

// NewParser returns a Parser that calls c.
func NewParser(c Completer, opts ...Option) *Parser {
	p := &Parser{completer: c, timeout: DefaultTimeout}
	for _, o := range opts {
		o(p)
	}
	return p
}

// fallbackError wraps a failure as intent.ErrNeedsFallback and carries a
// short reason for logs and metrics.
type fallbackError struct {
	reason string
	err    error
}

func (e *fallbackError) Error() string          { return fmt.Sprintf("nlp: %s: %v", e.reason, e.err) }
func (e *fallbackError) Unwrap() []error        { return []error{intent.ErrNeedsFallback, e.err} }
func (e *fallbackError) FallbackReason() string { return e.reason }

func needsFallback(reason string, err error) error {
	return &fallbackError{reason: reason, err: err}
}

// Parse implements intent.Parser.  Every error it returns matches
// intent.ErrNeedsFallback.
func (p *Parser) Parse(ctx context.Context, text string, rc intent.RunContext) (in intent.Intent, err error) {
	defer func() {
		if r := recover(); r != nil {
			in, err = intent.Intent{}, needsFallback("panic", fmt.Errorf("%v", r))
		}
	}()

	if p.limiter != nil && !p.limiter.Allow(rc.UserID) {
		return intent.Intent{}, needsFallback("throttled", ErrThrottled)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ref := rc.Reference()
	c, err := p.completer.Complete(ctx, CompletionRequest{
		System:     BuildSystemPrompt(ref, rc.Timezone),
		User:       userContent(text),
		SchemaName: SchemaName,
		Schema:     json.RawMessage(IntentSchema),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimit):
			return intent.Intent{}, needsFallback("rate_limit", err)
		case errors.Is(err, context.DeadlineExceeded):
			return intent.Intent{}, needsFallback("timeout", err)
		default:
			return intent.Intent{}, needsFallback("transport", err)
		}
	}
	if p.observer != nil {
		p.observer.ModelLatency(c.Latency)
	}

	r, err := decodeReply(c.Content)
	if err != nil {
		return intent.Intent{}, needsFallback("invalid_output", err)
	}
	in, err = toIntent(r, ref, rc.Timezone)
	if err != nil {
		return intent.Intent{}, needsFallback("invalid_output", err)
	}

	rc.Log().Debug("nlp: model intent",
		"kind", in.Kind,
		"confidence", in.Confidence,
		"model", c.Model,
		"latency_ms", c.Latency.Milliseconds(),
		"request_id", rc.RequestID,
	)
	return in, nil
}

func toIntent(r *reply, ref time.Time, tz string) (intent.Intent, error) {
	switch r.Intent {
	case "create":
		return toCreate(r.Create, r.Confidence, ref, tz)
	case "search":
		return toSearch(r.Search, r.Confidence, ref, tz), nil
	case "update":
		return toUpdate(r.Update, r.Confidence, ref, tz)
	case "unclear":
		return intent.NewUnclear(r.Confidence), nil
	}
	return intent.Intent{}, fmt.Errorf("%w: unknown intent %q", ErrMalformedOutput, r.Intent)
}

func toCreate(cr *createReply, conf float64, ref time.Time, tz string) (intent.Intent, error) {
	if cr == nil || strings.TrimSpace(cr.Title) == "" {
		return intent.Intent{}, fmt.Errorf("%w: create without title", ErrMalformedOutput)
	}
	loc := datetime.Location(tz)
	c := intent.CreatePayload{
		Title:     strings.TrimSpace(cr.Title),
		Location:  str(cr.Location),
		Notes:     str(cr.Notes),
		AllDay:    cr.AllDay,
		Attendees: cr.Attendees,
	}

	var (
		start   *time.Time
		hasTime bool
	)
	if t, timed, ok := parseInstant(str(cr.StartAt), loc); ok {
		start, hasTime = &t, timed
	} else if when := str(cr.When); when != "" {
		if res := datetime.Resolve(when, ref, tz); res.Found() {
			start, hasTime = res.Instant, res.HasTime
		}
	}

	switch intent.Clarification(str(cr.NeedsClarification)) {
	case intent.ClarifyTime:
		hasTime = false
	case intent.ClarifyDate:
		if start != nil && hasTime && !c.AllDay {
			c.Time = start.In(loc).Format("15:04")
		}
		start = nil
	}

	switch {
	case start != nil && c.AllDay:
		s := datetime.StartOfDay(*start, loc).UTC()
		c.StartAt = &s
	case start != nil && hasTime:
		c.StartAt = start
		if t, timed, ok := parseInstant(str(cr.EndAt), loc); ok && timed && t.After(*start) {
			c.EndAt = &t
		}
	case start != nil:
		c.Date = start.In(loc).Format("2006-01-02")
		c.NeedsClarification = intent.ClarifyTime
	default:
		c.NeedsClarification = intent.ClarifyDate
	}
	return intent.NewCreate(c, conf), nil
}

func toSearch(sr *searchReply, conf float64, ref time.Time, tz string) intent.Intent {
	if sr == nil {
		return intent.NewSearch(intent.SearchPayload{}, conf)
	}
	loc := datetime.Location(tz)
	p := intent.SearchPayload{Query: str(sr.Query), Attendee: str(sr.Attendee)}

	if t, _, ok := parseInstant(str(sr.From), loc); ok {
		p.From = &t
	}
	if t, timed, ok := parseInstant(str(sr.To), loc); ok {
		if !timed {
			t = datetime.EndOfDay(t, loc).UTC()
		}
		p.To = &t
	}
	if p.From == nil && p.To == nil {
		if when := str(sr.When); when != "" {
			r := datetime.ResolveRange(when, ref, tz)
			p.From, p.To = r.From, r.To
		}
	}
	return intent.NewSearch(p, conf)
}

func toUpdate(ur *updateReply, conf float64, ref time.Time, tz string) (intent.Intent, error) {
	if ur == nil || (str(ur.EventTitle) == "" && str(ur.EventID) == "") {
		return intent.Intent{}, fmt.Errorf("%w: update without a target", ErrMalformedOutput)
	}
	loc := datetime.Location(tz)
	u := intent.UpdatePayload{
		EventTitle: str(ur.EventTitle),
		EventID:    str(ur.EventID),
		Patch: intent.Patch{
			Title:    str(ur.Patch.Title),
			Location: str(ur.Patch.Location),
		},
	}

	if t, timed, ok := parseInstant(str(ur.Patch.StartAt), loc); ok {
		u.Patch.StartAt = &t
		u.Patch.KeepTime = !timed
	} else if when := str(ur.NewWhen); when != "" {
		if res := datetime.Resolve(when, ref, tz); res.Found() {
			u.Patch.StartAt = res.Instant
			u.Patch.KeepTime = !res.HasTime
		} else if h, m, ok := datetime.ParseClock(when); ok {
			u.Patch.Time = fmt.Sprintf("%02d:%02d", h, m)
		}
	}
	if t, timed, ok := parseInstant(str(ur.Patch.EndAt), loc); ok && timed {
		u.Patch.EndAt = &t
	}
	return intent.NewUpdate(u, conf), nil
}

// parseInstant accepts RFC 3339, a local date-time without offset, or a
// bare date.  timed is false for a bare date.
func parseInstant(s string, loc *time.Location) (t time.Time, timed, ok bool) {
	if s == "" {
		return time.Time{}, false, false
	}
	if v, err := time.Parse(time.RFC3339, s); err == nil {
		return v.UTC(), true, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if v, err := time.ParseInLocation(layout, s, loc); err == nil {
			return v.UTC(), true, true
		}
	}
	if v, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return v.UTC(), false, true
	}
	return time.Time{}, false, false
}

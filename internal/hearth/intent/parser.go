package intent

import (
	"context"
	"errors"
	"fmt"
)

// ErrNeedsFallback is returned (usually wrapped) by a Parser that could not
// produce an intent.  The Chain treats any error from the primary strategy
// the same way; the sentinel exists so callers can tell a planned fallback
// from a bug.
var ErrNeedsFallback = errors.New("intent: fallback required")

// Parser turns one message into an Intent.
//
// Implementations must be safe for concurrent use.  A Parser either returns
// a valid Intent or an error; it never returns both.
type Parser interface {
	Parse(ctx context.Context, text string, rc RunContext) (Intent, error)
}

// Strategy names the parser that produced an intent.
type Strategy string

const (
	StrategyModel    Strategy = "model"
	StrategyFallback Strategy = "fallback"
)

// Recorder receives parser outcomes.  metrics.Metrics satisfies it.
type Recorder interface {
	ParserResult(strategy string, kind string)
	ParserFallback(reason string)
}

// Reasoner is implemented by errors that know why the primary strategy
// gave up ("timeout", "throttled", "invalid_output" ...).
type Reasoner interface {
	FallbackReason() string
}

// Chain is the two-stage parser: Primary (model-backed) first, Fallback
// (deterministic) when Primary fails.  While a clarification slot is open
// the Fallback is used alone so slot filling stays deterministic.
//
// Primary may be nil, in which case every message goes to Fallback.
type Chain struct {
	Primary  Parser
	Fallback Parser
	Recorder Recorder
}

// Parse implements Parser.
func (c *Chain) Parse(ctx context.Context, text string, rc RunContext) (Intent, error) {
	in, _, err := c.ParseWithStrategy(ctx, text, rc)
	return in, err
}

// ParseWithStrategy is Parse that also reports which strategy answered.
func (c *Chain) ParseWithStrategy(ctx context.Context, text string, rc RunContext) (Intent, Strategy, error) {
	log := rc.Log()

	switch {
	case rc.Previous.Active():
		c.fallback("clarification")
	case c.Primary == nil:
		c.fallback("disabled")
	default:
		in, err := c.Primary.Parse(ctx, text, rc)
		if err == nil {
			err = in.Validate()
			if err == nil {
				c.result(StrategyModel, in)
				return in, StrategyModel, nil
			}
			err = fmt.Errorf("%w: %v", ErrNeedsFallback, err)
		}
		reason := fallbackReason(err)
		log.Info("intent: primary parser failed, using fallback",
			"reason", reason,
			"err", err,
			"request_id", rc.RequestID,
		)
		c.fallback(reason)
	}

	if c.Fallback == nil {
		return Intent{}, StrategyFallback, fmt.Errorf("intent: no fallback parser configured")
	}
	in, err := c.Fallback.Parse(ctx, text, rc)
	if err != nil {
		return Intent{}, StrategyFallback, fmt.Errorf("intent: fallback parser: %w", err)
	}
	c.result(StrategyFallback, in)
	return in, StrategyFallback, nil
}

func (c *Chain) result(s Strategy, in Intent) {
	if c.Recorder != nil {
		c.Recorder.ParserResult(string(s), string(in.Kind))
	}
}

func (c *Chain) fallback(reason string) {
	if c.Recorder != nil {
		c.Recorder.ParserFallback(reason)
	}
}

func fallbackReason(err error) string {
	var r Reasoner
	switch {
	case errors.As(err, &r):
		return r.FallbackReason()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Package executor turns a chat message into calendar tool calls.
//
// HandleMessage parses the message, asks for missing details, and either runs
// the resulting tool call or parks it behind a confirmation token.
// ConfirmPendingAction runs a parked call exactly once.  Neither entry point
// panics or returns an error: every branch produces a Result for the user.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/hearth/common/redact"
	"github.com/bdobrica/hearth/common/trace"
	"github.com/bdobrica/hearth/internal/hearth/approvals"
	"github.com/bdobrica/hearth/internal/hearth/datetime"
	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

// DefaultDuration is used for new events when the family has no
// calendar.defaultDuration preference.
const DefaultDuration = 60 * time.Minute

const (
	maxSearchResults = 5
	maxCandidates    = 3
)

const (
	textFailure   = "Sorry, something went wrong on my side. Please try again."
	textUnclear   = "I'm not sure what you'd like me to do. You can add an event (\"dentist tomorrow at 3pm\"), check your calendar (\"what's on this week?\") or move one (\"move soccer to saturday 10am\")."
	textCancelled = "Okay, I won't do that."
)

// Action records one calendar tool call made while handling a turn.
type Action struct {
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// PendingSummary describes a call waiting for confirmation.  Token is what
// the client sends back to ConfirmPendingAction.
type PendingSummary struct {
	Token       string    `json:"token"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Destructive bool      `json:"destructive"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Result is the reply for one turn.
type Result struct {
	Text    string   `json:"text"`
	Actions []Action `json:"actions"`
	// Payload carries structured data for the client.  While a
	// clarification is open it holds "awaitingInput" and "pendingEvent",
	// to be sent back as the next turn's previous context.
	Payload              map[string]any  `json:"payload,omitempty"`
	RequiresConfirmation bool            `json:"requiresConfirmation,omitempty"`
	PendingAction        *PendingSummary `json:"pendingAction,omitempty"`
}

// Recorder receives executor outcomes.  metrics.Metrics satisfies it.
type Recorder interface {
	ToolCall(tool string, success bool)
	Confirmation(outcome string)
}

// Executor is the intent executor.  It holds no per-conversation state; the
// pending-action store is its only shared resource.
type Executor struct {
	parser          intent.Parser
	store           approvals.Store
	recorder        Recorder
	ttl             time.Duration
	defaultDuration time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder reports tool calls and confirmations, typically to Prometheus.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithPendingTTL sets the lifetime of confirmation tokens.  Zero keeps the
// store default.
func WithPendingTTL(d time.Duration) Option {
	return func(e *Executor) { e.ttl = d }
}

// WithDefaultDuration overrides DefaultDuration.
func WithDefaultDuration(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultDuration = d
		}
	}
}

// New returns an Executor that parses with parser and parks gated calls in
// store.
func New(parser intent.Parser, store approvals.Store, opts ...Option) *Executor {
	e := &Executor{
		parser:          parser,
		store:           store,
		defaultDuration: DefaultDuration,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// toolCall is a tool invocation plus the sentence that describes it to the
// user.
type toolCall struct {
	Tool        string
	Input       map[string]any
	Description string
}

// HandleMessage interprets one chat message.
func (e *Executor) HandleMessage(ctx context.Context, message string, rc intent.RunContext, tx tools.Executor) (res Result) {
	rc = withRequestID(ctx, rc)
	log := rc.Log().With("request_id", rc.RequestID, "conversation_id", rc.ConversationID)
	defer e.recoverInto(&res, log, "handle message")

	in, err := e.parser.Parse(ctx, strings.TrimSpace(message), rc)
	if err != nil {
		log.Error("executor: parse failed", "err", err)
		return Result{Text: textUnclear, Actions: []Action{}}
	}
	log.Info("executor: intent", "kind", in.Kind, "confidence", in.Confidence)

	t := &turn{e: e, rc: rc, tx: tx, log: log}
	switch in.Kind {
	case intent.KindCreate:
		return t.create(ctx, in.Create, in.Confidence)
	case intent.KindSearch:
		return t.search(ctx, in.Search)
	case intent.KindUpdate:
		return t.update(ctx, in.Update, in.Confidence)
	default:
		return Result{Text: textUnclear, Actions: []Action{}}
	}
}

// ConfirmPendingAction runs the call parked under token, if token is valid
// for the requesting user and family.  A token works once.
func (e *Executor) ConfirmPendingAction(ctx context.Context, token string, rc intent.RunContext, tx tools.Executor) (res Result) {
	rc = withRequestID(ctx, rc)
	log := rc.Log().With("request_id", rc.RequestID, "token", redact.Token(token))
	defer e.recoverInto(&res, log, "confirm")

	pa, ok := e.consume(ctx, token, rc, log)
	if !ok {
		return Result{Text: approvals.InvalidConfirmationMessage, Actions: []Action{}}
	}
	e.confirmation("confirmed")
	log.Info("executor: pending action confirmed", "tool", pa.ToolName, "origin_request_id", pa.RequestID)

	t := &turn{e: e, rc: rc, tx: tx, log: log}
	return t.run(ctx, toolCall{Tool: pa.ToolName, Input: pa.Input, Description: pa.Description})
}

// CancelPendingAction discards the call parked under token.
func (e *Executor) CancelPendingAction(ctx context.Context, token string, rc intent.RunContext) (res Result) {
	rc = withRequestID(ctx, rc)
	log := rc.Log().With("request_id", rc.RequestID, "token", redact.Token(token))
	defer e.recoverInto(&res, log, "cancel")

	if _, ok := e.consume(ctx, token, rc, log); !ok {
		return Result{Text: approvals.InvalidConfirmationMessage, Actions: []Action{}}
	}
	e.confirmation("cancelled")
	return Result{Text: textCancelled, Actions: []Action{}}
}

func (e *Executor) consume(ctx context.Context, token string, rc intent.RunContext, log *slog.Logger) (*approvals.PendingAction, bool) {
	cr := e.store.Consume(ctx, token, rc.UserID, rc.FamilyID)
	if !cr.Found {
		log.Warn("executor: confirmation rejected",
			"reason", cr.Reason,
			"user_id", rc.UserID,
			"family_id", rc.FamilyID,
			"err", cr.Err,
		)
		e.confirmation(string(cr.Reason))
		return nil, false
	}
	return cr.Action, true
}

func (e *Executor) recoverInto(res *Result, log *slog.Logger, op string) {
	if r := recover(); r != nil {
		log.Error("executor: panic recovered", "op", op, "panic", fmt.Sprint(r))
		*res = Result{Text: textFailure, Actions: []Action{}}
	}
}

func (e *Executor) confirmation(outcome string) {
	if e.recorder != nil {
		e.recorder.Confirmation(outcome)
	}
}

func withRequestID(ctx context.Context, rc intent.RunContext) intent.RunContext {
	if rc.RequestID == "" {
		rc.RequestID = trace.FromContext(ctx)
	}
	return rc
}

// turn carries the per-call state of one HandleMessage or confirmation.
type turn struct {
	e       *Executor
	rc      intent.RunContext
	tx      tools.Executor
	log     *slog.Logger
	actions []Action
}

// call runs one tool and records it.
func (t *turn) call(ctx context.Context, name string, input map[string]any) tools.Result {
	r := t.tx.Execute(ctx, name, input)
	if !r.Success && r.Error == "" {
		r.Error = "unknown error"
	}
	if t.e.recorder != nil {
		t.e.recorder.ToolCall(name, r.Success)
	}
	if name != tools.PrefsGetBulk {
		t.actions = append(t.actions, Action{Tool: name, Success: r.Success, Data: r.Data, Error: r.Error})
	}
	if !r.Success {
		t.log.Warn("executor: tool failed", "tool", name, "err", r.Error)
	}
	return r
}

// result stamps the recorded actions onto r.
func (t *turn) result(r Result) Result {
	r.Actions = t.actions
	if r.Actions == nil {
		r.Actions = []Action{}
	}
	return r
}

// dispatch runs c directly or parks it for confirmation.
func (t *turn) dispatch(ctx context.Context, c toolCall, confidence float64) Result {
	destructive := approvals.IsDestructive(c.Tool)
	if !approvals.RequiresConfirmation(c.Tool, confidence, destructive) {
		return t.run(ctx, c)
	}

	pa, err := t.e.store.Create(ctx, approvals.NewAction{
		OwnerUserID:    t.rc.UserID,
		OwnerFamilyID:  t.rc.FamilyID,
		RequestID:      t.rc.RequestID,
		ConversationID: t.rc.ConversationID,
		ToolName:       c.Tool,
		Input:          c.Input,
		Description:    c.Description,
		Destructive:    destructive,
		TTL:            t.e.ttl,
	})
	if err != nil {
		t.log.Error("executor: create pending action", "tool", c.Tool, "err", err)
		return t.result(Result{Text: textFailure})
	}
	t.e.confirmation("requested")
	t.log.Info("executor: confirmation requested",
		"tool", c.Tool,
		"confidence", confidence,
		"destructive", destructive,
		"token", redact.Token(pa.Token),
	)

	return t.result(Result{
		Text:                 fmt.Sprintf("Just to check: %s. Shall I go ahead?", c.Description),
		RequiresConfirmation: true,
		PendingAction: &PendingSummary{
			Token:       pa.Token,
			Tool:        pa.ToolName,
			Description: pa.Description,
			Destructive: pa.Destructive,
			ExpiresAt:   pa.ExpiresAt(),
		},
	})
}

// run executes a write and renders its outcome.
func (t *turn) run(ctx context.Context, c toolCall) Result {
	r := t.call(ctx, c.Tool, c.Input)
	if !r.Success {
		return t.result(Result{Text: fmt.Sprintf("I couldn't %s: %s", c.Description, r.Error)})
	}

	loc := t.loc()
	ev, err := tools.DecodeEvent(r.Data)
	switch {
	case err != nil:
		return t.result(Result{Text: "Done: " + c.Description + "."})
	case c.Tool == tools.CalendarCreate:
		return t.result(Result{
			Text:    fmt.Sprintf("Added %q %s.", ev.Title, describeWhen(ev, loc)),
			Payload: map[string]any{"event": ev},
		})
	case c.Tool == tools.CalendarUpdate:
		return t.result(Result{
			Text:    fmt.Sprintf("Updated %q, now %s.", ev.Title, describeWhen(ev, loc)),
			Payload: map[string]any{"event": ev},
		})
	default:
		return t.result(Result{Text: "Done: " + c.Description + "."})
	}
}

func (t *turn) loc() *time.Location {
	return datetime.Location(t.rc.Timezone)
}

package executor_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/hearth/internal/hearth/approvals"
	"github.com/bdobrica/hearth/internal/hearth/executor"
	"github.com/bdobrica/hearth/internal/hearth/fallback"
	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

var monday = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type call struct {
	name  string
	input map[string]any
}

// fakeTools records every call.  Responses can be fixed per tool; by
// default create and update echo an event built from their input.
type fakeTools struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]tools.Result
}

func newFakeTools() *fakeTools {
	return &fakeTools{responses: map[string]tools.Result{}}
}

func (f *fakeTools) Execute(_ context.Context, name string, input map[string]any) tools.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, input: input})
	if r, ok := f.responses[name]; ok {
		return r
	}
	switch name {
	case tools.CalendarCreate:
		return tools.OK(map[string]any{"event": map[string]any{
			"id": "e-new", "title": input["title"], "startAt": input["startAt"], "endAt": input["endAt"],
		}})
	case tools.CalendarUpdate:
		patch, _ := input["patch"].(map[string]any)
		return tools.OK(map[string]any{"event": map[string]any{
			"id": input["eventId"], "title": "Team meeting", "startAt": patch["startAt"],
		}})
	case tools.CalendarSearch:
		return tools.OK(map[string]any{"events": []any{}, "total": 0})
	}
	return tools.Failed("unsupported tool " + name)
}

func (f *fakeTools) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func (f *fakeTools) last(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].name == name {
			return f.calls[i].input
		}
	}
	return nil
}

func events(evs ...map[string]any) tools.Result {
	list := make([]any, len(evs))
	for i, e := range evs {
		list[i] = e
	}
	return tools.OK(map[string]any{"events": list, "total": len(evs)})
}

func ev(id, title, start, end string) map[string]any {
	m := map[string]any{"id": id, "title": title, "startAt": start}
	if end != "" {
		m["endAt"] = end
	}
	return m
}

type stubParser struct{ in intent.Intent }

func (s stubParser) Parse(context.Context, string, intent.RunContext) (intent.Intent, error) {
	return s.in, nil
}

func rc() intent.RunContext {
	return intent.RunContext{
		UserID:         "u1",
		FamilyID:       "f1",
		FamilyMemberID: "m1",
		RequestID:      "r1",
		ConversationID: "c1",
		Timezone:       "UTC",
		Now:            monday,
	}
}

func newFallbackExecutor(opts ...executor.Option) (*executor.Executor, *approvals.MemoryStore) {
	store := approvals.NewMemoryStore()
	chain := &intent.Chain{Fallback: fallback.New()}
	return executor.New(chain, store, opts...), store
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestHandleMessage_CreateDirect(t *testing.T) {
	x, store := newFallbackExecutor()
	ft := newFakeTools()
	ft.responses[tools.PrefsGetBulk] = tools.OK(map[string]any{"results": map[string]any{
		tools.PrefDefaultDuration: float64(30),
	}})

	res := x.HandleMessage(context.Background(), "schedule dentist tomorrow at 3pm", rc(), ft)

	if res.RequiresConfirmation || res.PendingAction != nil {
		t.Fatalf("expected direct execution, got %+v", res)
	}
	if ft.count(tools.CalendarCreate) != 1 {
		t.Fatalf("calendar.create calls: got %d", ft.count(tools.CalendarCreate))
	}
	in := ft.last(tools.CalendarCreate)
	if in["startAt"] != "2024-01-02T15:00:00Z" || in["endAt"] != "2024-01-02T15:30:00Z" {
		t.Errorf("times: got %v - %v", in["startAt"], in["endAt"])
	}
	if in["title"] != "Dentist" || in["familyId"] != "f1" || in["createdBy"] != "m1" {
		t.Errorf("input: got %v", in)
	}
	if !strings.Contains(res.Text, `Added "Dentist" on Tue, Jan 2 at 3:00 PM`) {
		t.Errorf("text: got %q", res.Text)
	}
	if len(res.Actions) != 1 || res.Actions[0].Tool != tools.CalendarCreate || !res.Actions[0].Success {
		t.Errorf("actions: got %+v", res.Actions)
	}
	if store.Len() != 0 {
		t.Error("nothing should be pending")
	}
}

func TestHandleMessage_DefaultDurationFallback(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	ft.responses[tools.PrefsGetBulk] = tools.Failed("prefs offline")

	x.HandleMessage(context.Background(), "schedule dentist tomorrow at 3pm", rc(), ft)

	if got := ft.last(tools.CalendarCreate)["endAt"]; got != "2024-01-02T16:00:00Z" {
		t.Errorf("endAt: got %v, want one hour after start", got)
	}
}

func TestHandleMessage_ClarifyDateThenCreate(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()

	first := x.HandleMessage(context.Background(), "schedule team meeting", rc(), ft)
	if first.Payload["awaitingInput"] != "dateTime" {
		t.Fatalf("payload: got %+v", first.Payload)
	}
	if !strings.Contains(first.Text, "Team meeting") {
		t.Errorf("question should name the event: %q", first.Text)
	}
	if len(ft.calls) != 0 {
		t.Fatalf("no tool may be called while clarifying, got %+v", ft.calls)
	}

	next := rc()
	next.Previous = executor.PreviousFromPayload(first.Payload)
	second := x.HandleMessage(context.Background(), "tomorrow at 10am", next, ft)

	if second.RequiresConfirmation {
		t.Fatalf("answer at 0.90 should create directly, got %+v", second)
	}
	in := ft.last(tools.CalendarCreate)
	if in == nil {
		t.Fatal("calendar.create was not called")
	}
	if in["title"] != "Team meeting" || in["startAt"] != "2024-01-02T10:00:00Z" {
		t.Errorf("input: got %v", in)
	}
}

func TestHandleMessage_ClarifyTime(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()

	first := x.HandleMessage(context.Background(), "schedule recital on friday", rc(), ft)
	if first.Payload["awaitingInput"] != "time" {
		t.Fatalf("payload: got %+v", first.Payload)
	}
	if !strings.Contains(first.Text, "Fri, Jan 5") {
		t.Errorf("question should name the day: %q", first.Text)
	}
	pe, _ := first.Payload["pendingEvent"].(*intent.PendingEvent)
	if pe == nil || pe.Date != "2024-01-05" {
		t.Fatalf("pending event: got %+v", first.Payload["pendingEvent"])
	}

	next := rc()
	next.Previous = executor.PreviousFromPayload(first.Payload)
	x.HandleMessage(context.Background(), "7pm", next, ft)

	if got := ft.last(tools.CalendarCreate)["startAt"]; got != "2024-01-05T19:00:00Z" {
		t.Errorf("startAt: got %v", got)
	}
}

func TestPreviousFromPayload_JSONShape(t *testing.T) {
	prev := executor.PreviousFromPayload(map[string]any{
		"awaitingInput": "time",
		"pendingEvent":  map[string]any{"title": "Recital", "date": "2024-01-05"},
	})
	if prev == nil || prev.AwaitingInput != intent.AwaitingTime {
		t.Fatalf("got %+v", prev)
	}
	if prev.PendingEvent == nil || prev.PendingEvent.Title != "Recital" || prev.PendingEvent.Date != "2024-01-05" {
		t.Errorf("pending event: got %+v", prev.PendingEvent)
	}
	if executor.PreviousFromPayload(nil) != nil {
		t.Error("nil payload must yield nil context")
	}
}

func lowConfidenceCreate() intent.Intent {
	start := at("2024-01-03T18:00:00Z")
	return intent.NewCreate(intent.CreatePayload{Title: "Dinner", StartAt: &start}, 0.5)
}

func TestConfirmation_RunsOnce(t *testing.T) {
	store := approvals.NewMemoryStore()
	x := executor.New(stubParser{lowConfidenceCreate()}, store)
	ft := newFakeTools()
	ctx := context.Background()

	res := x.HandleMessage(ctx, "dinner wed 6pm?", rc(), ft)
	if !res.RequiresConfirmation || res.PendingAction == nil || res.PendingAction.Token == "" {
		t.Fatalf("expected a confirmation prompt, got %+v", res)
	}
	if ft.count(tools.CalendarCreate) != 0 {
		t.Fatal("gated call must not run before confirmation")
	}
	if !strings.Contains(res.Text, `"Dinner"`) {
		t.Errorf("prompt should describe the action: %q", res.Text)
	}

	token := res.PendingAction.Token
	first := x.ConfirmPendingAction(ctx, token, rc(), ft)
	if !strings.HasPrefix(first.Text, "Added") {
		t.Errorf("first confirm: got %q", first.Text)
	}
	second := x.ConfirmPendingAction(ctx, token, rc(), ft)
	if second.Text != approvals.InvalidConfirmationMessage {
		t.Errorf("second confirm: got %q", second.Text)
	}
	if n := ft.count(tools.CalendarCreate); n != 1 {
		t.Errorf("calendar.create calls: got %d, want 1", n)
	}
}

func TestConfirmation_RejectsOtherOwner(t *testing.T) {
	store := approvals.NewMemoryStore()
	x := executor.New(stubParser{lowConfidenceCreate()}, store)
	ft := newFakeTools()
	ctx := context.Background()

	token := x.HandleMessage(ctx, "dinner", rc(), ft).PendingAction.Token

	other := rc()
	other.UserID = "intruder"
	if got := x.ConfirmPendingAction(ctx, token, other, ft).Text; got != approvals.InvalidConfirmationMessage {
		t.Errorf("other user: got %q", got)
	}
	if got := x.ConfirmPendingAction(ctx, "guess", rc(), ft).Text; got != approvals.InvalidConfirmationMessage {
		t.Errorf("unknown token: got %q", got)
	}
	if ft.count(tools.CalendarCreate) != 0 {
		t.Fatal("rejected confirmations must not execute")
	}
	if got := x.ConfirmPendingAction(ctx, token, rc(), ft).Text; !strings.HasPrefix(got, "Added") {
		t.Errorf("owner: got %q", got)
	}
}

func TestConfirmation_ConcurrentConfirms(t *testing.T) {
	store := approvals.NewMemoryStore()
	x := executor.New(stubParser{lowConfidenceCreate()}, store)
	ft := newFakeTools()
	ctx := context.Background()

	token := x.HandleMessage(ctx, "dinner", rc(), ft).PendingAction.Token

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			x.ConfirmPendingAction(ctx, token, rc(), ft)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := ft.count(tools.CalendarCreate); n != 1 {
		t.Errorf("calendar.create calls: got %d, want exactly 1", n)
	}
}

func TestCancelPendingAction(t *testing.T) {
	store := approvals.NewMemoryStore()
	x := executor.New(stubParser{lowConfidenceCreate()}, store)
	ft := newFakeTools()
	ctx := context.Background()

	token := x.HandleMessage(ctx, "dinner", rc(), ft).PendingAction.Token
	if got := x.CancelPendingAction(ctx, token, rc()).Text; got != "Okay, I won't do that." {
		t.Errorf("cancel: got %q", got)
	}
	if got := x.ConfirmPendingAction(ctx, token, rc(), ft).Text; got != approvals.InvalidConfirmationMessage {
		t.Errorf("confirm after cancel: got %q", got)
	}
}

func TestHandleMessage_Search(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	var evs []map[string]any
	for d := 1; d <= 7; d++ {
		day := time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC)
		evs = append(evs, ev("e", "Standup", day.Format(time.RFC3339), day.Add(15*time.Minute).Format(time.RFC3339)))
	}
	ft.responses[tools.CalendarSearch] = events(evs...)

	res := x.HandleMessage(context.Background(), "what's on my calendar this week", rc(), ft)

	if res.RequiresConfirmation {
		t.Fatal("search must never need confirmation")
	}
	in := ft.last(tools.CalendarSearch)
	if in["from"] != "2023-12-31T00:00:00Z" {
		t.Errorf("from: got %v", in["from"])
	}
	if n := strings.Count(res.Text, "\n- "); n != 5 {
		t.Errorf("listed events: got %d, want 5\n%s", n, res.Text)
	}
	if !strings.HasSuffix(res.Text, "+2 more") {
		t.Errorf("expected +2 more suffix:\n%s", res.Text)
	}
}

func TestHandleMessage_SearchEmpty(t *testing.T) {
	ctx := context.Background()

	x, _ := newFallbackExecutor()
	res := x.HandleMessage(ctx, "what's on my calendar today", rc(), newFakeTools())
	if res.Text != "You have nothing scheduled on Mon, Jan 1." {
		t.Errorf("bounded empty: got %q", res.Text)
	}

	q := executor.New(stubParser{intent.NewSearch(intent.SearchPayload{Query: "piano"}, 0.9)}, approvals.NewMemoryStore())
	res = q.HandleMessage(ctx, "piano?", rc(), newFakeTools())
	if res.Text != `I couldn't find any events matching "piano".` {
		t.Errorf("generic empty: got %q", res.Text)
	}
}

func TestHandleMessage_SearchFailure(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	ft.responses[tools.CalendarSearch] = tools.Failed("database is locked")

	res := x.HandleMessage(context.Background(), "what's on my calendar today", rc(), ft)
	if !strings.Contains(res.Text, "database is locked") {
		t.Errorf("tool error must reach the user: %q", res.Text)
	}
	if len(res.Actions) != 1 || res.Actions[0].Success {
		t.Errorf("actions: got %+v", res.Actions)
	}
}

func TestHandleMessage_UpdateDisambiguation(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	ft.responses[tools.CalendarSearch] = events(
		ev("a", "Team meeting", "2024-01-04T10:00:00Z", "2024-01-04T11:00:00Z"),
		ev("b", "Team meeting", "2024-01-05T14:00:00Z", "2024-01-05T15:00:00Z"),
	)

	res := x.HandleMessage(context.Background(), "move team meeting to friday 3pm", rc(), ft)

	if ft.count(tools.CalendarUpdate) != 0 {
		t.Fatal("no update may run while the target is ambiguous")
	}
	for _, want := range []string{"Team meeting (Thu, Jan 4 at 10:00 AM)", "Team meeting (Fri, Jan 5 at 2:00 PM)"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("missing candidate %q in:\n%s", want, res.Text)
		}
	}
	if n := strings.Count(res.Text, "\n"); n != 2 {
		t.Errorf("expected exactly 2 candidates:\n%s", res.Text)
	}
	if ft.last(tools.CalendarSearch)["query"] != "team meeting" {
		t.Errorf("search input: got %v", ft.last(tools.CalendarSearch))
	}
}

func TestHandleMessage_UpdateManyCandidates(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	ft.responses[tools.CalendarSearch] = events(
		ev("a", "Soccer practice", "2024-01-02T16:00:00Z", ""),
		ev("b", "Soccer", "2024-01-03T16:00:00Z", ""),
		ev("c", "Soccer game", "2024-01-06T10:00:00Z", ""),
		ev("d", "Soccer party", "2024-01-07T12:00:00Z", ""),
	)

	res := x.HandleMessage(context.Background(), "move soccer to saturday 10am", rc(), ft)
	if n := strings.Count(res.Text, ". Soccer"); n != 3 {
		t.Errorf("expected 3 listed candidates:\n%s", res.Text)
	}
	if !strings.HasSuffix(res.Text, "+1 more") {
		t.Errorf("expected +1 more:\n%s", res.Text)
	}
}

func TestHandleMessage_UpdateNotFound(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()

	res := x.HandleMessage(context.Background(), "move piano lesson to thursday", rc(), ft)
	if res.Text != `I couldn't find an event called "piano lesson".` {
		t.Errorf("text: got %q", res.Text)
	}
	if ft.count(tools.CalendarUpdate) != 0 {
		t.Error("no update expected")
	}
}

func TestHandleMessage_UpdateSingleMatch(t *testing.T) {
	cases := []struct {
		name    string
		message string
		event   map[string]any
		start   string
		end     string
	}{
		{
			name:    "new day and time",
			message: "move team meeting to friday 3pm",
			event:   ev("a", "Team meeting", "2024-01-04T10:00:00Z", "2024-01-04T11:00:00Z"),
			start:   "2024-01-05T15:00:00Z",
			end:     "2024-01-05T16:00:00Z",
		},
		{
			name:    "new day keeps clock time",
			message: "move team meeting to thursday",
			event:   ev("a", "Team meeting", "2024-01-02T16:30:00Z", "2024-01-02T17:15:00Z"),
			start:   "2024-01-04T16:30:00Z",
			end:     "2024-01-04T17:15:00Z",
		},
		{
			name:    "new time keeps day",
			message: "push the team meeting to 4pm",
			event:   ev("a", "Team meeting", "2024-01-03T09:00:00Z", "2024-01-03T09:30:00Z"),
			start:   "2024-01-03T16:00:00Z",
			end:     "2024-01-03T16:30:00Z",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x, _ := newFallbackExecutor()
			ft := newFakeTools()
			ft.responses[tools.CalendarSearch] = events(tc.event)

			res := x.HandleMessage(context.Background(), tc.message, rc(), ft)
			if res.RequiresConfirmation {
				t.Fatalf("expected direct update, got %+v", res)
			}
			in := ft.last(tools.CalendarUpdate)
			if in == nil {
				t.Fatalf("calendar.update not called; text %q", res.Text)
			}
			patch, _ := in["patch"].(map[string]any)
			if in["eventId"] != "a" || patch["startAt"] != tc.start || patch["endAt"] != tc.end {
				t.Errorf("input: got %v", in)
			}
			if !strings.HasPrefix(res.Text, `Updated "Team meeting"`) {
				t.Errorf("text: got %q", res.Text)
			}
		})
	}
}

func TestHandleMessage_RescheduleWithoutTarget(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()

	res := x.HandleMessage(context.Background(), "reschedule dentist", rc(), ft)
	if len(ft.calls) != 0 {
		t.Errorf("no tool calls expected, got %+v", ft.calls)
	}
	if !strings.Contains(res.Text, `"dentist"`) {
		t.Errorf("text: got %q", res.Text)
	}
}

func TestHandleMessage_ToolFailure(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	ft.responses[tools.CalendarCreate] = tools.Failed("calendar is read-only")

	res := x.HandleMessage(context.Background(), "schedule dentist tomorrow at 3pm", rc(), ft)
	if !strings.Contains(res.Text, "calendar is read-only") {
		t.Errorf("text: got %q", res.Text)
	}
}

func TestHandleMessage_RecoversFromPanics(t *testing.T) {
	x, _ := newFallbackExecutor()
	boom := tools.ExecutorFunc(func(context.Context, string, map[string]any) tools.Result {
		panic("executor exploded")
	})

	res := x.HandleMessage(context.Background(), "what's on my calendar today", rc(), boom)
	if res.Text == "" || res.Actions == nil {
		t.Errorf("expected a completed result, got %+v", res)
	}
}

func TestHandleMessage_Unclear(t *testing.T) {
	x, _ := newFallbackExecutor()
	ft := newFakeTools()
	res := x.HandleMessage(context.Background(), "hello", rc(), ft)
	if !strings.HasPrefix(res.Text, "I'm not sure") {
		t.Errorf("text: got %q", res.Text)
	}
	if len(ft.calls) != 0 {
		t.Error("unclear intents must not call tools")
	}
}

type recorder struct {
	mu            sync.Mutex
	tools         map[string]int
	confirmations map[string]int
}

func (r *recorder) ToolCall(tool string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool]++
}

func (r *recorder) Confirmation(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmations[outcome]++
}

func TestRecorder(t *testing.T) {
	rec := &recorder{tools: map[string]int{}, confirmations: map[string]int{}}
	x := executor.New(stubParser{lowConfidenceCreate()}, approvals.NewMemoryStore(), executor.WithRecorder(rec))
	ft := newFakeTools()
	ctx := context.Background()

	token := x.HandleMessage(ctx, "dinner", rc(), ft).PendingAction.Token
	x.ConfirmPendingAction(ctx, token, rc(), ft)
	x.ConfirmPendingAction(ctx, token, rc(), ft)

	if rec.confirmations["requested"] != 1 || rec.confirmations["confirmed"] != 1 || rec.confirmations["unknown"] != 1 {
		t.Errorf("confirmations: got %v", rec.confirmations)
	}
	if rec.tools[tools.CalendarCreate] != 1 || rec.tools[tools.PrefsGetBulk] != 1 {
		t.Errorf("tool calls: got %v", rec.tools)
	}
}

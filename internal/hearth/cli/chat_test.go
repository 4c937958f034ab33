package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/hearth/internal/hearth/approvals"
	"github.com/bdobrica/hearth/internal/hearth/cli"
	"github.com/bdobrica/hearth/internal/hearth/executor"
	"github.com/bdobrica/hearth/internal/hearth/fallback"
	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

// recordingTools answers every create with a fixed event and counts calls.
type recordingTools struct {
	calls map[string]int
}

func (r *recordingTools) Execute(_ context.Context, name string, input map[string]any) tools.Result {
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[name]++
	switch name {
	case tools.PrefsGetBulk:
		return tools.OK(map[string]any{"results": map[string]any{}})
	case tools.CalendarCreate:
		return tools.OK(map[string]any{"event": map[string]any{
			"id":      "e1",
			"title":   input["title"],
			"startAt": input["startAt"],
			"endAt":   input["endAt"],
		}})
	}
	return tools.OK(map[string]any{"events": []any{}, "total": 0})
}

func newSession(rt *recordingTools) *cli.Session {
	x := executor.New(&intent.Chain{Fallback: fallback.New()}, approvals.NewMemoryStore())
	return &cli.Session{
		Executor: x,
		Tools:    rt,
		Base: intent.RunContext{
			UserID:   "u1",
			FamilyID: "f1",
			Timezone: "UTC",
			Now:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestSession_ClarificationCarriesOver(t *testing.T) {
	rt := &recordingTools{}
	s := newSession(rt)
	ctx := context.Background()

	first := s.Turn(ctx, "schedule team meeting")
	if !strings.Contains(first.Text, "When") {
		t.Fatalf("expected a date question, got %q", first.Text)
	}
	second := s.Turn(ctx, "tomorrow at 10am")
	if !strings.HasPrefix(second.Text, "Added") {
		t.Fatalf("expected the event to be added, got %q", second.Text)
	}
	if rt.calls[tools.CalendarCreate] != 1 {
		t.Errorf("creates: got %d", rt.calls[tools.CalendarCreate])
	}
}

func TestSession_ConfirmAndCancel(t *testing.T) {
	cases := []struct {
		answer  string
		creates int
	}{
		{"yes", 1},
		{"no", 0},
		{"something else entirely", 0},
	}
	for _, tc := range cases {
		t.Run(tc.answer, func(t *testing.T) {
			rt := &recordingTools{}
			s := newSession(rt)
			ctx := context.Background()

			res := s.Turn(ctx, "dentist appointment friday 3pm")
			if !res.RequiresConfirmation {
				t.Fatalf("expected a confirmation prompt, got %q", res.Text)
			}
			s.Turn(ctx, tc.answer)
			if got := rt.calls[tools.CalendarCreate]; got != tc.creates {
				t.Errorf("creates: got %d, want %d", got, tc.creates)
			}
		})
	}
}

func TestSession_Run(t *testing.T) {
	s := newSession(&recordingTools{})
	in := strings.NewReader("schedule dentist tomorrow at 3pm\n\nquit\nschedule never reached tomorrow at 4pm\n")
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), `Added "Dentist"`) {
		t.Errorf("output: %q", out.String())
	}
	if strings.Contains(out.String(), "never reached") {
		t.Error("input after quit was processed")
	}
}

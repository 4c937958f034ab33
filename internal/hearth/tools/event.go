package tools

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the calendar event shape returned by create, update and search.
type Event struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	StartAt  time.Time  `json:"startAt"`
	EndAt    *time.Time `json:"endAt,omitempty"`
	Location string     `json:"location,omitempty"`
	AllDay   bool       `json:"allDay,omitempty"`
}

// Duration is EndAt - StartAt, or zero when there is no end.
func (e Event) Duration() time.Duration {
	if e.EndAt == nil {
		return 0
	}
	return e.EndAt.Sub(e.StartAt)
}

// Map returns e in the loosely-typed form executors exchange.
func (e Event) Map() map[string]any {
	m := map[string]any{
		"id":      e.ID,
		"title":   e.Title,
		"startAt": e.StartAt.UTC().Format(time.RFC3339),
	}
	if e.EndAt != nil {
		m["endAt"] = e.EndAt.UTC().Format(time.RFC3339)
	}
	if e.Location != "" {
		m["location"] = e.Location
	}
	if e.AllDay {
		m["allDay"] = true
	}
	return m
}

// SearchResult is the data of a calendar.search call.
type SearchResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// DecodeEvent reads {"event": {...}} from create/update data.
func DecodeEvent(data map[string]any) (Event, error) {
	var wrapper struct {
		Event *Event `json:"event"`
	}
	if err := remarshal(data, &wrapper); err != nil {
		return Event{}, fmt.Errorf("tools: decode event: %w", err)
	}
	if wrapper.Event == nil {
		return Event{}, fmt.Errorf("tools: decode event: no event in result")
	}
	return *wrapper.Event, nil
}

// DecodeSearch reads {"events": [...], "total": n}.  A missing total means
// len(events).
func DecodeSearch(data map[string]any) (SearchResult, error) {
	var sr SearchResult
	if err := remarshal(data, &sr); err != nil {
		return SearchResult{}, fmt.Errorf("tools: decode search: %w", err)
	}
	if sr.Total < len(sr.Events) {
		sr.Total = len(sr.Events)
	}
	return sr, nil
}

// DecodePrefs reads {"results": {key: value}}.  Values are returned as
// given; the caller interprets them.
func DecodePrefs(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	if res, ok := data["results"].(map[string]any); ok {
		return res
	}
	return nil
}

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

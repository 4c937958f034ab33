// Package calendar is a small SQLite-backed implementation of the tool
// contract.  It lets the CLI run the assistant end to end against a local
// database; production deployments plug in their own tools.Executor.
package calendar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/hearth/internal/hearth/tools"
)

// timeLayout keeps stored instants in UTC with a fixed width so that string
// comparison orders them.
const timeLayout = "2006-01-02T15:04:05Z"

// searchLimit caps the events returned by one search; total still counts
// every match.
const searchLimit = 50

var errNotFound = errors.New("event not found")

// Executor implements tools.Executor over the events and preferences tables.
type Executor struct {
	db  *sql.DB
	now func() time.Time
}

// New returns an Executor using db, which must carry the store migrations.
func New(db *sql.DB) *Executor {
	return &Executor{db: db, now: time.Now}
}

// Execute implements tools.Executor.
func (x *Executor) Execute(ctx context.Context, name string, input map[string]any) tools.Result {
	var (
		data map[string]any
		err  error
	)
	switch name {
	case tools.CalendarCreate:
		data, err = x.create(ctx, input)
	case tools.CalendarSearch:
		data, err = x.search(ctx, input)
	case tools.CalendarUpdate:
		data, err = x.update(ctx, input)
	case tools.CalendarDelete:
		data, err = x.delete(ctx, input)
	case tools.PrefsGetBulk:
		data, err = x.prefs(ctx, input)
	default:
		err = fmt.Errorf("unknown tool %q", name)
	}
	if err != nil {
		slog.Debug("calendar: tool failed", "tool", name, "err", err)
		return tools.Failed(err.Error())
	}
	return tools.OK(data)
}

func (x *Executor) create(ctx context.Context, in map[string]any) (map[string]any, error) {
	family := str(in, tools.FamilyKey)
	title := strings.TrimSpace(str(in, "title"))
	if title == "" {
		return nil, errors.New("title is required")
	}
	start, ok := instant(in, "startAt")
	if !ok {
		return nil, errors.New("startAt is required")
	}
	var end *time.Time
	if e, ok := instant(in, "endAt"); ok {
		if !e.After(start) {
			return nil, errors.New("endAt must be after startAt")
		}
		end = &e
	}
	attendees, err := json.Marshal(strs(in["attendees"]))
	if err != nil {
		return nil, err
	}

	ev := tools.Event{
		ID:       uuid.NewString(),
		Title:    title,
		StartAt:  start,
		EndAt:    end,
		Location: str(in, "location"),
		AllDay:   boolean(in, "allDay"),
	}
	now := x.now().UTC().Format(timeLayout)
	_, err = x.db.ExecContext(ctx, `
INSERT INTO events (id, family_id, title, start_at, end_at, location, notes, all_day, attendees, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, ev.ID, family, ev.Title, formatTime(start), nullTime(end), ev.Location, str(in, "notes"), ev.AllDay,
		string(attendees), str(in, "createdBy"), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return map[string]any{"event": ev.Map()}, nil
}

func (x *Executor) search(ctx context.Context, in map[string]any) (map[string]any, error) {
	where := []string{"family_id = ?"}
	args := []any{str(in, tools.FamilyKey)}

	if id := str(in, "id"); id != "" {
		where = append(where, "id = ?")
		args = append(args, id)
	}
	if q := strings.TrimSpace(str(in, "query")); q != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	if from, ok := instant(in, "from"); ok {
		where = append(where, "start_at >= ?")
		args = append(args, formatTime(from))
	}
	if to, ok := instant(in, "to"); ok {
		where = append(where, "start_at <= ?")
		args = append(args, formatTime(to))
	}
	if who := strings.TrimSpace(str(in, "attendee")); who != "" {
		where = append(where, "LOWER(attendees) LIKE ?")
		args = append(args, `%"`+strings.ToLower(who)+`"%`)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := x.db.QueryContext(ctx,
		"SELECT id, title, start_at, end_at, location, all_day FROM events WHERE "+cond+" ORDER BY start_at LIMIT ?",
		append(args, searchLimit)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []any{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev.Map())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return map[string]any{"events": events, "total": total}, nil
}

func (x *Executor) update(ctx context.Context, in map[string]any) (map[string]any, error) {
	family := str(in, tools.FamilyKey)
	id := str(in, "eventId")
	if id == "" {
		return nil, errors.New("eventId is required")
	}
	patch, _ := in["patch"].(map[string]any)
	if len(patch) == 0 {
		return nil, errors.New("patch is empty")
	}

	set := []string{"updated_at = ?"}
	args := []any{x.now().UTC().Format(timeLayout)}
	if t := strings.TrimSpace(str(patch, "title")); t != "" {
		set = append(set, "title = ?")
		args = append(args, t)
	}
	if l := str(patch, "location"); l != "" {
		set = append(set, "location = ?")
		args = append(args, l)
	}
	if s, ok := instant(patch, "startAt"); ok {
		set = append(set, "start_at = ?")
		args = append(args, formatTime(s))
	}
	if e, ok := instant(patch, "endAt"); ok {
		set = append(set, "end_at = ?")
		args = append(args, formatTime(e))
	}
	args = append(args, id, family)

	res, err := x.db.ExecContext(ctx,
		"UPDATE events SET "+strings.Join(set, ", ")+" WHERE id = ? AND family_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errNotFound
	}

	ev, err := scanEvent(x.db.QueryRowContext(ctx,
		"SELECT id, title, start_at, end_at, location, all_day FROM events WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return map[string]any{"event": ev.Map()}, nil
}

func (x *Executor) delete(ctx context.Context, in map[string]any) (map[string]any, error) {
	id := str(in, "eventId")
	res, err := x.db.ExecContext(ctx, "DELETE FROM events WHERE id = ? AND family_id = ?", id, str(in, tools.FamilyKey))
	if err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errNotFound
	}
	return map[string]any{"deleted": id}, nil
}

func (x *Executor) prefs(ctx context.Context, in map[string]any) (map[string]any, error) {
	family := str(in, tools.FamilyKey)
	results := map[string]any{}
	for _, key := range strs(in["keys"]) {
		var raw string
		err := x.db.QueryRowContext(ctx,
			"SELECT value FROM preferences WHERE family_id = ? AND key = ?", family, key).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read preference %s: %w", key, err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		results[key] = v
	}
	return map[string]any{"results": results}, nil
}

// SetPreference stores value (JSON-encoded) for familyID.
func (x *Executor) SetPreference(ctx context.Context, familyID, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("calendar: encode preference: %w", err)
	}
	_, err = x.db.ExecContext(ctx, `
INSERT INTO preferences (family_id, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (family_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, familyID, key, string(b), x.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("calendar: set preference: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (tools.Event, error) {
	var (
		ev         tools.Event
		start      string
		end        sql.NullString
		allDay     bool
		locationNS sql.NullString
	)
	if err := s.Scan(&ev.ID, &ev.Title, &start, &end, &locationNS, &allDay); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tools.Event{}, errNotFound
		}
		return tools.Event{}, fmt.Errorf("scan event: %w", err)
	}
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return tools.Event{}, fmt.Errorf("stored start_at %q: %w", start, err)
	}
	ev.StartAt = t
	if end.Valid && end.String != "" {
		if e, err := time.Parse(time.RFC3339, end.String); err == nil {
			ev.EndAt = &e
		}
	}
	ev.Location = locationNS.String
	ev.AllDay = allDay
	return ev, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolean(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func instant(m map[string]any, key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		return t.UTC(), err == nil
	case time.Time:
		return v.UTC(), true
	}
	return time.Time{}, false
}

// strs accepts []string or the []any a JSON round trip produces.
func strs(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

package approvals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps pending actions in the pending_actions table so they
// survive a restart.  The schema is created by the store package migrations.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLiteStore returns a store backed by db.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{db: db, opts: buildOptions(opts)}
}

// Create mints a token and inserts the action.
func (s *SQLiteStore) Create(ctx context.Context, a NewAction) (*PendingAction, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ttl := a.TTL
	if ttl <= 0 {
		ttl = s.opts.ttl
	}
	input, err := json.Marshal(a.Input)
	if err != nil {
		return nil, fmt.Errorf("approvals: encode tool input: %w", err)
	}
	now := s.opts.now()

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pending_actions (token, owner_user_id, owner_family_id, request_id, conversation_id,
                             tool_name, input_json, description, destructive, created_at_ms, ttl_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, token, a.OwnerUserID, a.OwnerFamilyID, a.RequestID, a.ConversationID,
		a.ToolName, string(input), a.Description, a.Destructive,
		now.UnixMilli(), ttl.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("approvals: insert pending action: %w", err)
	}

	return &PendingAction{
		Token:          token,
		OwnerUserID:    a.OwnerUserID,
		OwnerFamilyID:  a.OwnerFamilyID,
		RequestID:      a.RequestID,
		ConversationID: a.ConversationID,
		ToolName:       a.ToolName,
		Input:          a.Input,
		Description:    a.Description,
		Destructive:    a.Destructive,
		CreatedAt:      now,
		TTL:            ttl,
	}, nil
}

// Consume deletes and returns the action in one statement, so two racing
// confirmations cannot both see it.  When nothing matched, a second lookup
// classifies the failure for logging and sweeps the row if it had expired.
func (s *SQLiteStore) Consume(ctx context.Context, token, userID, familyID string) ConsumeResult {
	if token == "" {
		return ConsumeResult{Reason: ReasonUnknown}
	}
	nowMs := s.opts.now().UnixMilli()

	row := s.db.QueryRowContext(ctx, `
DELETE FROM pending_actions
WHERE token = ? AND owner_user_id = ? AND owner_family_id = ? AND created_at_ms + ttl_ms > ?
RETURNING token, owner_user_id, owner_family_id, request_id, conversation_id,
          tool_name, input_json, description, destructive, created_at_ms, ttl_ms
`, token, userID, familyID, nowMs)

	pa, err := scanAction(row)
	if err == nil {
		return ConsumeResult{Found: true, Action: pa}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ConsumeResult{Reason: ReasonStorage, Err: err}
	}
	return s.classify(ctx, token, userID, familyID, nowMs)
}

func (s *SQLiteStore) classify(ctx context.Context, token, userID, familyID string, nowMs int64) ConsumeResult {
	var (
		owner, family    string
		createdMs, ttlMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT owner_user_id, owner_family_id, created_at_ms, ttl_ms FROM pending_actions WHERE token = ?
`, token).Scan(&owner, &family, &createdMs, &ttlMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ConsumeResult{Reason: ReasonUnknown}
	case err != nil:
		return ConsumeResult{Reason: ReasonStorage, Err: err}
	case owner != userID || family != familyID:
		return ConsumeResult{Reason: ReasonMismatched}
	case createdMs+ttlMs <= nowMs:
		if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE token = ?`, token); err != nil {
			return ConsumeResult{Reason: ReasonStorage, Err: err}
		}
		return ConsumeResult{Reason: ReasonExpired}
	}
	// Valid on the second look only if the row appeared in between; fail closed.
	return ConsumeResult{Reason: ReasonUnknown}
}

// PurgeExpired deletes every expired row and returns how many were removed.
// Consume never depends on it.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_actions WHERE created_at_ms + ttl_ms <= ?`, s.opts.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("approvals: purge expired: %w", err)
	}
	return res.RowsAffected()
}

func scanAction(row *sql.Row) (*PendingAction, error) {
	var (
		pa               PendingAction
		input            string
		createdMs, ttlMs int64
	)
	err := row.Scan(&pa.Token, &pa.OwnerUserID, &pa.OwnerFamilyID, &pa.RequestID, &pa.ConversationID,
		&pa.ToolName, &input, &pa.Description, &pa.Destructive, &createdMs, &ttlMs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(input), &pa.Input); err != nil {
		return nil, fmt.Errorf("approvals: decode tool input: %w", err)
	}
	pa.CreatedAt = time.UnixMilli(createdMs)
	pa.TTL = time.Duration(ttlMs) * time.Millisecond
	return &pa, nil
}

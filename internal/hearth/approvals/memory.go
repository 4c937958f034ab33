package approvals

import (
	"context"
	"sync"
)

// MemoryStore keeps pending actions in process memory.  It is the default
// store; actions do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*PendingAction
	opts    options
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		actions: make(map[string]*PendingAction),
		opts:    buildOptions(opts),
	}
}

// Create mints a token and stores the action under it.
func (s *MemoryStore) Create(_ context.Context, a NewAction) (*PendingAction, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ttl := a.TTL
	if ttl <= 0 {
		ttl = s.opts.ttl
	}
	pa := &PendingAction{
		Token:          token,
		OwnerUserID:    a.OwnerUserID,
		OwnerFamilyID:  a.OwnerFamilyID,
		RequestID:      a.RequestID,
		ConversationID: a.ConversationID,
		ToolName:       a.ToolName,
		Input:          a.Input,
		Description:    a.Description,
		Destructive:    a.Destructive,
		CreatedAt:      s.opts.now(),
		TTL:            ttl,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[token] = pa
	cp := *pa
	return &cp, nil
}

// Consume returns the action for token and removes it, provided it belongs
// to userID/familyID and has not expired.  Expired actions are dropped when
// seen.  An owner mismatch leaves the action in place for its real owner.
func (s *MemoryStore) Consume(_ context.Context, token, userID, familyID string) ConsumeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.actions[token]
	if !ok || token == "" {
		return ConsumeResult{Reason: ReasonUnknown}
	}
	if pa.OwnerUserID != userID || pa.OwnerFamilyID != familyID {
		return ConsumeResult{Reason: ReasonMismatched}
	}
	if !s.opts.now().Before(pa.ExpiresAt()) {
		delete(s.actions, token)
		return ConsumeResult{Reason: ReasonExpired}
	}
	delete(s.actions, token)
	return ConsumeResult{Found: true, Action: pa}
}

// Len reports how many actions are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

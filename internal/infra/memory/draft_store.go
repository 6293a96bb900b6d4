package memory

import (
	"context"
	"sync"
	"time"

	"placement-service/internal/domain"
)

// DraftStore is an in-memory implementation of app.DraftStore. Expiry is not tracked;
// drafts are dropped when the attempt is finalized.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[string]map[string]domain.Draft
}

func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: make(map[string]map[string]domain.Draft)}
}

func (s *DraftStore) Seed(_ context.Context, attemptID string, drafts map[string]domain.Draft, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.drafts[attemptID]
	if !ok {
		buf = make(map[string]domain.Draft, len(drafts))
		s.drafts[attemptID] = buf
	}
	for questionID, d := range drafts {
		if _, exists := buf[questionID]; !exists {
			buf[questionID] = d
		}
	}
	return nil
}

func (s *DraftStore) Save(_ context.Context, attemptID, questionID string, draft domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.drafts[attemptID]
	if !ok {
		buf = make(map[string]domain.Draft)
		s.drafts[attemptID] = buf
	}
	buf[questionID] = draft
	return nil
}

func (s *DraftStore) Load(_ context.Context, attemptID string) (map[string]domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Draft, len(s.drafts[attemptID]))
	for k, v := range s.drafts[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (s *DraftStore) Clear(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, attemptID)
	return nil
}

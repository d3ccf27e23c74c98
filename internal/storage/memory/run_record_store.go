package memory

import (
	"context"
	"sort"
	"sync"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// RunRecordStore is an in-memory implementation of storage.RunRecordStore.
type RunRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunRecord // keyed by run ID
}

// NewRunRecordStore creates a new in-memory run record store.
func NewRunRecordStore() *RunRecordStore {
	return &RunRecordStore{
		data: make(map[string]*domain.RunRecord),
	}
}

// Insert adds a run record. Returns ErrDuplicateKey if the ID exists.
func (s *RunRecordStore) Insert(_ context.Context, r *domain.RunRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	copy.Actions = append([]domain.RunAction(nil), r.Actions...)
	s.data[r.ID] = &copy
	return nil
}

// GetByID retrieves a run by ID. Returns ErrNotFound if not exists.
func (s *RunRecordStore) GetByID(_ context.Context, id string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	copy.Actions = append([]domain.RunAction(nil), r.Actions...)
	return &copy, nil
}

// ListRecent retrieves the most recent runs, ordered by started_at DESC.
func (s *RunRecordStore) ListRecent(_ context.Context, limit int) ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RunRecord, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		copy.Actions = append([]domain.RunAction(nil), r.Actions...)
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ storage.RunRecordStore = (*RunRecordStore)(nil)

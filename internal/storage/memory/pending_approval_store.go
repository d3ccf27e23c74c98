package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// PendingApprovalStore is an in-memory implementation of storage.PendingApprovalStore.
type PendingApprovalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PendingApproval // keyed by approval ID
}

// NewPendingApprovalStore creates a new in-memory approval store.
func NewPendingApprovalStore() *PendingApprovalStore {
	return &PendingApprovalStore{
		data: make(map[string]*domain.PendingApproval),
	}
}

// Insert adds a new approval. Returns ErrDuplicateKey if the ID exists.
func (s *PendingApprovalStore) Insert(_ context.Context, a *domain.PendingApproval) error {
	if a == nil || a.ID == "" || a.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.data[a.ID] = &copy
	return nil
}

// GetByID retrieves an approval by ID. Returns ErrNotFound if not exists.
func (s *PendingApprovalStore) GetByID(_ context.Context, id string) (*domain.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// ListPending retrieves all PENDING approvals, ordered by created_at ASC.
func (s *PendingApprovalStore) ListPending(_ context.Context) ([]*domain.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PendingApproval
	for _, a := range s.data {
		if a.Status == domain.ApprovalPending {
			copy := *a
			out = append(out, &copy)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Resolve transitions a PENDING approval to APPROVED or DECLINED.
func (s *PendingApprovalStore) Resolve(_ context.Context, id string, status domain.ApprovalStatus, at time.Time) error {
	if status != domain.ApprovalApproved && status != domain.ApprovalDeclined {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if a.Status != domain.ApprovalPending {
		return storage.ErrAlreadyResolved
	}

	a.Status = status
	resolvedAt := at
	a.ResolvedAt = &resolvedAt
	return nil
}

var _ storage.PendingApprovalStore = (*PendingApprovalStore)(nil)

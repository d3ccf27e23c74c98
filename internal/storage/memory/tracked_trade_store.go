package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// TrackedTradeStore is an in-memory implementation of storage.TrackedTradeStore.
type TrackedTradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TrackedTrade // keyed by trade ID
}

// NewTrackedTradeStore creates a new in-memory tracked trade store.
func NewTrackedTradeStore() *TrackedTradeStore {
	return &TrackedTradeStore{
		data: make(map[string]*domain.TrackedTrade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
func (s *TrackedTradeStore) Insert(_ context.Context, t *domain.TrackedTrade) error {
	if t == nil || t.ID == "" || t.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.ID] = &copy
	return nil
}

// GetByID retrieves a trade by ID. Returns ErrNotFound if not exists.
func (s *TrackedTradeStore) GetByID(_ context.Context, id string) (*domain.TrackedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// ListOpen retrieves all ACTIVE trades, ordered by opened_at ASC.
func (s *TrackedTradeStore) ListOpen(_ context.Context) ([]*domain.TrackedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TrackedTrade
	for _, t := range s.data {
		if t.Status == domain.TradeStatusActive {
			copy := *t
			out = append(out, &copy)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out, nil
}

// ListRecent retrieves the most recent trades, ordered by opened_at DESC.
func (s *TrackedTradeStore) ListRecent(_ context.Context, limit int) ([]*domain.TrackedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TrackedTrade, 0, len(s.data))
	for _, t := range s.data {
		copy := *t
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountOpen returns the number of ACTIVE trades.
func (s *TrackedTradeStore) CountOpen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.data {
		if t.Status == domain.TradeStatusActive {
			n++
		}
	}
	return n, nil
}

// CountOpenBySymbol returns the number of ACTIVE trades for a symbol.
func (s *TrackedTradeStore) CountOpenBySymbol(_ context.Context, symbol string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.data {
		if t.Status == domain.TradeStatusActive && t.Symbol == symbol {
			n++
		}
	}
	return n, nil
}

// CountOpenedSince returns trades opened at or after the cutoff.
func (s *TrackedTradeStore) CountOpenedSince(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.data {
		if !t.OpenedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// UpdateStop tightens the stop of an ACTIVE trade.
func (s *TrackedTradeStore) UpdateStop(_ context.Context, id string, stop float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if t.Status != domain.TradeStatusActive {
		return storage.ErrAlreadyClosed
	}

	t.Stop = stop
	return nil
}

// Close transitions an ACTIVE trade to CLOSED.
func (s *TrackedTradeStore) Close(_ context.Context, id string, exitReason string, exitPrice float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if t.Status != domain.TradeStatusActive {
		return storage.ErrAlreadyClosed
	}

	t.Status = domain.TradeStatusClosed
	t.ExitReason = exitReason
	t.ExitPrice = &exitPrice
	closedAt := at
	t.ClosedAt = &closedAt
	return nil
}

var _ storage.TrackedTradeStore = (*TrackedTradeStore)(nil)

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// SignalEventStore is an in-memory implementation of storage.SignalEventStore.
type SignalEventStore struct {
	mu   sync.RWMutex
	data []*domain.SignalEvent
}

// NewSignalEventStore creates a new in-memory signal event store.
func NewSignalEventStore() *SignalEventStore {
	return &SignalEventStore{}
}

// Insert adds one event.
func (s *SignalEventStore) Insert(_ context.Context, e *domain.SignalEvent) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *e
	s.data = append(s.data, &copy)
	return nil
}

// InsertBulk adds multiple events.
func (s *SignalEventStore) InsertBulk(_ context.Context, events []*domain.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
	}
	for _, e := range events {
		copy := *e
		s.data = append(s.data, &copy)
	}
	return nil
}

// ListBySymbol retrieves events for a symbol within [start, end], ordered
// by at ASC.
func (s *SignalEventStore) ListBySymbol(_ context.Context, symbol string, start, end time.Time) ([]*domain.SignalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SignalEvent
	for _, e := range s.data {
		if e.Symbol != symbol {
			continue
		}
		if e.At.Before(start) || e.At.After(end) {
			continue
		}
		copy := *e
		out = append(out, &copy)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}

var _ storage.SignalEventStore = (*SignalEventStore)(nil)

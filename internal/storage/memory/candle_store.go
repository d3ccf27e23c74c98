package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Bars are deduplicated by timestamp; the latest write wins.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Candle // symbol|interval -> unix -> bar
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]map[int64]domain.Candle),
	}
}

func candleKey(symbol, interval string) string {
	return symbol + "|" + interval
}

// PutCandles stores a series for symbol/interval.
func (s *CandleStore) PutCandles(_ context.Context, symbol, interval string, candles []domain.Candle) error {
	if symbol == "" || interval == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candleKey(symbol, interval)
	m, ok := s.data[key]
	if !ok {
		m = make(map[int64]domain.Candle, len(candles))
		s.data[key] = m
	}
	for _, c := range candles {
		m[c.Time.Unix()] = c
	}
	return nil
}

// GetCandles retrieves bars within [start, end], ordered by time ASC.
func (s *CandleStore) GetCandles(_ context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[candleKey(symbol, interval)]
	if !ok {
		return nil, nil
	}

	var out []domain.Candle
	for _, c := range m {
		if c.Time.Before(start) || c.Time.After(end) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)

package memory

import (
	"context"
	"sync"
	"time"

	"trade-autopilot/internal/storage"
)

type dedupEntry struct {
	at         time.Time
	confidence int
	expiresAt  time.Time
}

// DedupIndex is an in-memory implementation of storage.DedupIndex.
// Entries expire lazily on read.
type DedupIndex struct {
	mu   sync.Mutex
	data map[string]dedupEntry
	now  func() time.Time
}

// NewDedupIndex creates a new in-memory dedup index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{
		data: make(map[string]dedupEntry),
		now:  time.Now,
	}
}

// Last returns the recorded admission for key, or ErrNotFound when absent
// or expired.
func (d *DedupIndex) Last(_ context.Context, key string) (time.Time, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, exists := d.data[key]
	if !exists {
		return time.Time{}, 0, storage.ErrNotFound
	}
	if d.now().After(e.expiresAt) {
		delete(d.data, key)
		return time.Time{}, 0, storage.ErrNotFound
	}
	return e.at, e.confidence, nil
}

// Put records an admission for key with the given ttl.
func (d *DedupIndex) Put(_ context.Context, key string, at time.Time, confidence int, ttl time.Duration) error {
	if key == "" || ttl <= 0 {
		return storage.ErrInvalidInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.data[key] = dedupEntry{
		at:         at,
		confidence: confidence,
		expiresAt:  d.now().Add(ttl),
	}
	return nil
}

var _ storage.DedupIndex = (*DedupIndex)(nil)

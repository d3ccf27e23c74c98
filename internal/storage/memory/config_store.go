package memory

import (
	"context"
	"sync"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// ConfigStore is an in-memory implementation of storage.ConfigStore.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg *domain.AutomationConfig
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// Get retrieves the current config.
func (s *ConfigStore) Get(_ context.Context) (*domain.AutomationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return nil, storage.ErrNotFound
	}

	copy := *s.cfg
	return &copy, nil
}

// Put stores cfg with optimistic concurrency on expectVersion.
func (s *ConfigStore) Put(_ context.Context, cfg *domain.AutomationConfig, expectVersion int64) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(0)
	if s.cfg != nil {
		current = s.cfg.Version
	}
	if current != expectVersion {
		return storage.ErrVersionConflict
	}

	copy := *cfg
	s.cfg = &copy
	return nil
}

var _ storage.ConfigStore = (*ConfigStore)(nil)

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// ConfigStore implements storage.ConfigStore using PostgreSQL. A single
// row holds the whole document as jsonb; the version column carries the
// optimistic-concurrency check.
type ConfigStore struct {
	pool *Pool
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(pool *Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ConfigStore = (*ConfigStore)(nil)

// singletonID pins the table to one row.
const singletonID = 1

// Get retrieves the current config.
func (s *ConfigStore) Get(ctx context.Context) (*domain.AutomationConfig, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM automation_config WHERE id = $1`, singletonID,
	).Scan(&doc)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get automation config: %w", err)
	}

	var cfg domain.AutomationConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal automation config: %w", err)
	}
	return &cfg, nil
}

// Put stores cfg with optimistic concurrency on expectVersion.
func (s *ConfigStore) Put(ctx context.Context, cfg *domain.AutomationConfig, expectVersion int64) error {
	if cfg == nil {
		return storage.ErrInvalidInput
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal automation config: %w", err)
	}

	if expectVersion == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO automation_config (id, version, doc)
			VALUES ($1, $2, $3)
		`, singletonID, cfg.Version, doc)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrVersionConflict
			}
			return fmt.Errorf("seed automation config: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE automation_config
		SET version = $2, doc = $3
		WHERE id = $1 AND version = $4
	`, singletonID, cfg.Version, doc, expectVersion)
	if err != nil {
		return fmt.Errorf("update automation config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

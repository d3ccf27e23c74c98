package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// RunRecordStore implements storage.RunRecordStore using PostgreSQL.
// Actions and meta are stored as jsonb; runs are append-only.
type RunRecordStore struct {
	pool *Pool
}

// NewRunRecordStore creates a new RunRecordStore.
func NewRunRecordStore(pool *Pool) *RunRecordStore {
	return &RunRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunRecordStore = (*RunRecordStore)(nil)

// Insert adds a run record. Returns ErrDuplicateKey if the ID exists.
func (s *RunRecordStore) Insert(ctx context.Context, r *domain.RunRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	actionsJSON, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("marshal run actions: %w", err)
	}
	metaJSON, err := json.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}

	query := `
		INSERT INTO run_records (
			id, started_at, finished_at, dry_run, config_version,
			mode, ok, error, actions, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.StartedAt, r.FinishedAt, r.DryRun, r.ConfigVersion,
		string(r.Mode), r.OK, r.Error, actionsJSON, metaJSON,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID. Returns ErrNotFound if not exists.
func (s *RunRecordStore) GetByID(ctx context.Context, id string) (*domain.RunRecord, error) {
	query := `
		SELECT id, started_at, finished_at, dry_run, config_version,
		       mode, ok, error, actions, meta
		FROM run_records
		WHERE id = $1
	`

	r, err := scanRunRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run record: %w", err)
	}
	return r, nil
}

// ListRecent retrieves the most recent runs, ordered by started_at DESC.
func (s *RunRecordStore) ListRecent(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	query := `
		SELECT id, started_at, finished_at, dry_run, config_version,
		       mode, ok, error, actions, meta
		FROM run_records
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.RunRecord
	for rows.Next() {
		r, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run records: %w", err)
	}
	return out, nil
}

func scanRunRecord(row pgx.Row) (*domain.RunRecord, error) {
	var r domain.RunRecord
	var mode string
	var actionsJSON, metaJSON []byte
	err := row.Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.ConfigVersion,
		&mode, &r.OK, &r.Error, &actionsJSON, &metaJSON,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actionsJSON, &r.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal run actions: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &r.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal run meta: %w", err)
	}
	r.Mode = domain.Mode(mode)
	return &r, nil
}

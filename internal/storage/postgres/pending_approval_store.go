package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// PendingApprovalStore implements storage.PendingApprovalStore using
// PostgreSQL. The originating signal is stored as jsonb so the full trade
// plan survives the approval round-trip.
type PendingApprovalStore struct {
	pool *Pool
}

// NewPendingApprovalStore creates a new PendingApprovalStore.
func NewPendingApprovalStore(pool *Pool) *PendingApprovalStore {
	return &PendingApprovalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PendingApprovalStore = (*PendingApprovalStore)(nil)

// Insert adds a new approval. Returns ErrDuplicateKey if the ID exists.
func (s *PendingApprovalStore) Insert(ctx context.Context, a *domain.PendingApproval) error {
	if a == nil || a.ID == "" || a.Symbol == "" {
		return storage.ErrInvalidInput
	}

	signalJSON, err := json.Marshal(a.Signal)
	if err != nil {
		return fmt.Errorf("marshal approval signal: %w", err)
	}

	query := `
		INSERT INTO pending_approvals (
			id, symbol, strategy_id, signal, quantity,
			estimated_notional_usd, status, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.Symbol, a.StrategyID, signalJSON, a.Quantity,
		a.EstimatedNotionalUSD, string(a.Status), a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pending approval: %w", err)
	}
	return nil
}

// GetByID retrieves an approval by ID. Returns ErrNotFound if not exists.
func (s *PendingApprovalStore) GetByID(ctx context.Context, id string) (*domain.PendingApproval, error) {
	query := `
		SELECT id, symbol, strategy_id, signal, quantity,
		       estimated_notional_usd, status, created_at, resolved_at
		FROM pending_approvals
		WHERE id = $1
	`

	a, err := scanApproval(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pending approval: %w", err)
	}
	return a, nil
}

// ListPending retrieves all PENDING approvals, ordered by created_at ASC.
func (s *PendingApprovalStore) ListPending(ctx context.Context) ([]*domain.PendingApproval, error) {
	query := `
		SELECT id, symbol, strategy_id, signal, quantity,
		       estimated_notional_usd, status, created_at, resolved_at
		FROM pending_approvals
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.PendingApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending approval: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending approvals: %w", err)
	}
	return out, nil
}

// Resolve transitions a PENDING approval to APPROVED or DECLINED.
func (s *PendingApprovalStore) Resolve(ctx context.Context, id string, status domain.ApprovalStatus, at time.Time) error {
	if status != domain.ApprovalApproved && status != domain.ApprovalDeclined {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_approvals
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM pending_approvals WHERE id = $1`, id,
		).Scan(&current)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("check approval status: %w", err)
		}
		return storage.ErrAlreadyResolved
	}
	return nil
}

func scanApproval(row pgx.Row) (*domain.PendingApproval, error) {
	var a domain.PendingApproval
	var status string
	var signalJSON []byte
	err := row.Scan(
		&a.ID, &a.Symbol, &a.StrategyID, &signalJSON, &a.Quantity,
		&a.EstimatedNotionalUSD, &status, &a.CreatedAt, &a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(signalJSON, &a.Signal); err != nil {
		return nil, fmt.Errorf("unmarshal approval signal: %w", err)
	}
	a.Status = domain.ApprovalStatus(status)
	return &a, nil
}

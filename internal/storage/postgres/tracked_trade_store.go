package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// TrackedTradeStore implements storage.TrackedTradeStore using PostgreSQL.
type TrackedTradeStore struct {
	pool *Pool
}

// NewTrackedTradeStore creates a new TrackedTradeStore.
func NewTrackedTradeStore(pool *Pool) *TrackedTradeStore {
	return &TrackedTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TrackedTradeStore = (*TrackedTradeStore)(nil)

const trackedTradeColumns = `
	id, symbol, strategy_id, action, quantity,
	entry, stop, target, initial_risk, paper, order_id,
	opened_at, status, closed_at, exit_reason, exit_price
`

// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
func (s *TrackedTradeStore) Insert(ctx context.Context, t *domain.TrackedTrade) error {
	if t == nil || t.ID == "" || t.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tracked_trades (` + trackedTradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Symbol, t.StrategyID, string(t.Action), t.Quantity,
		t.Entry, t.Stop, t.Target, t.InitialRisk, t.Paper, t.OrderID,
		t.OpenedAt, string(t.Status), t.ClosedAt, t.ExitReason, t.ExitPrice,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert tracked trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by ID. Returns ErrNotFound if not exists.
func (s *TrackedTradeStore) GetByID(ctx context.Context, id string) (*domain.TrackedTrade, error) {
	query := `SELECT ` + trackedTradeColumns + ` FROM tracked_trades WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	t, err := scanTrackedTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tracked trade: %w", err)
	}
	return t, nil
}

// ListOpen retrieves all ACTIVE trades, ordered by opened_at ASC.
func (s *TrackedTradeStore) ListOpen(ctx context.Context) ([]*domain.TrackedTrade, error) {
	query := `
		SELECT ` + trackedTradeColumns + `
		FROM tracked_trades
		WHERE status = 'ACTIVE'
		ORDER BY opened_at ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}
	defer rows.Close()

	return scanTrackedTrades(rows)
}

// ListRecent retrieves the most recent trades, ordered by opened_at DESC.
func (s *TrackedTradeStore) ListRecent(ctx context.Context, limit int) ([]*domain.TrackedTrade, error) {
	query := `
		SELECT ` + trackedTradeColumns + `
		FROM tracked_trades
		ORDER BY opened_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrackedTrades(rows)
}

// CountOpen returns the number of ACTIVE trades.
func (s *TrackedTradeStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tracked_trades WHERE status = 'ACTIVE'`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open trades: %w", err)
	}
	return n, nil
}

// CountOpenBySymbol returns the number of ACTIVE trades for a symbol.
func (s *TrackedTradeStore) CountOpenBySymbol(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tracked_trades WHERE status = 'ACTIVE' AND symbol = $1`,
		symbol,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open trades by symbol: %w", err)
	}
	return n, nil
}

// CountOpenedSince returns trades opened at or after the cutoff.
func (s *TrackedTradeStore) CountOpenedSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tracked_trades WHERE opened_at >= $1`,
		cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades opened since: %w", err)
	}
	return n, nil
}

// UpdateStop tightens the stop of an ACTIVE trade.
func (s *TrackedTradeStore) UpdateStop(ctx context.Context, id string, stop float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracked_trades SET stop = $2 WHERE id = $1 AND status = 'ACTIVE'`,
		id, stop,
	)
	if err != nil {
		return fmt.Errorf("update stop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrClosed(ctx, id)
	}
	return nil
}

// Close transitions an ACTIVE trade to CLOSED with the exit details.
func (s *TrackedTradeStore) Close(ctx context.Context, id string, exitReason string, exitPrice float64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tracked_trades
		SET status = 'CLOSED', exit_reason = $2, exit_price = $3, closed_at = $4
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, exitReason, exitPrice, at)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrClosed(ctx, id)
	}
	return nil
}

// missingOrClosed distinguishes "no such trade" from "not ACTIVE" after a
// zero-row conditional update.
func (s *TrackedTradeStore) missingOrClosed(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM tracked_trades WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check trade status: %w", err)
	}
	return storage.ErrAlreadyClosed
}

func scanTrackedTrade(row pgx.Row) (*domain.TrackedTrade, error) {
	var t domain.TrackedTrade
	var action, status string
	err := row.Scan(
		&t.ID, &t.Symbol, &t.StrategyID, &action, &t.Quantity,
		&t.Entry, &t.Stop, &t.Target, &t.InitialRisk, &t.Paper, &t.OrderID,
		&t.OpenedAt, &status, &t.ClosedAt, &t.ExitReason, &t.ExitPrice,
	)
	if err != nil {
		return nil, err
	}
	t.Action = domain.Action(action)
	t.Status = domain.TradeStatus(status)
	return &t, nil
}

func scanTrackedTrades(rows pgx.Rows) ([]*domain.TrackedTrade, error) {
	var out []*domain.TrackedTrade
	for rows.Next() {
		t, err := scanTrackedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked trade: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked trades: %w", err)
	}
	return out, nil
}

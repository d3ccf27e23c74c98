package clickhouse

import (
	"context"
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// SignalEventStore implements storage.SignalEventStore using ClickHouse.
// Events are append-only; one row per evaluator emission.
type SignalEventStore struct {
	conn *Conn
}

// NewSignalEventStore creates a new SignalEventStore.
func NewSignalEventStore(conn *Conn) *SignalEventStore {
	return &SignalEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SignalEventStore = (*SignalEventStore)(nil)

// Insert adds one event.
func (s *SignalEventStore) Insert(ctx context.Context, e *domain.SignalEvent) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.SignalEvent{e})
}

// InsertBulk adds multiple events in one batch.
func (s *SignalEventStore) InsertBulk(ctx context.Context, events []*domain.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO signal_events (
			id, symbol, strategy_id, preset_id, action, confidence, reason, at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ID, e.Symbol, e.StrategyID, e.PresetID,
			string(e.Action), int32(e.Confidence), e.Reason, e.At,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// ListBySymbol retrieves events for a symbol within [start, end], ordered
// by at ASC.
func (s *SignalEventStore) ListBySymbol(ctx context.Context, symbol string, start, end time.Time) ([]*domain.SignalEvent, error) {
	query := `
		SELECT id, symbol, strategy_id, preset_id, action, confidence, reason, at
		FROM signal_events
		WHERE symbol = ? AND at >= ? AND at <= ?
		ORDER BY at ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query signal events: %w", err)
	}
	defer rows.Close()

	var out []*domain.SignalEvent
	for rows.Next() {
		var e domain.SignalEvent
		var action string
		var confidence int32
		err := rows.Scan(
			&e.ID, &e.Symbol, &e.StrategyID, &e.PresetID,
			&action, &confidence, &e.Reason, &e.At,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal event: %w", err)
		}
		e.Action = domain.Action(action)
		e.Confidence = int(confidence)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal events: %w", err)
	}
	return out, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse. The candles
// table is a ReplacingMergeTree keyed by (symbol, interval, ts), so repeated
// writes of the same bar collapse at merge time and the read path
// deduplicates with FINAL.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// PutCandles stores a series for symbol/interval.
func (s *CandleStore) PutCandles(ctx context.Context, symbol, interval string, candles []domain.Candle) error {
	if symbol == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, interval, ts, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			symbol, interval, c.Time,
			c.Open, c.High, c.Low, c.Close, c.Volume,
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

// GetCandles retrieves bars within [start, end], ordered by time ASC.
func (s *CandleStore) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT ts, open, high, low, close, volume
		FROM candles FINAL
		WHERE symbol = ? AND interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return out, nil
}

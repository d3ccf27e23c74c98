package storage

import (
	"context"
	"time"

	"trade-autopilot/internal/domain"
)

// TrackedTradeStore provides access to tracked_trades storage.
type TrackedTradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, t *domain.TrackedTrade) error

	// GetByID retrieves a trade by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TrackedTrade, error)

	// ListOpen retrieves all ACTIVE trades, ordered by opened_at ASC.
	ListOpen(ctx context.Context) ([]*domain.TrackedTrade, error)

	// ListRecent retrieves the most recent trades regardless of status,
	// ordered by opened_at DESC, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*domain.TrackedTrade, error)

	// CountOpen returns the number of ACTIVE trades.
	CountOpen(ctx context.Context) (int, error)

	// CountOpenBySymbol returns the number of ACTIVE trades for a symbol.
	CountOpenBySymbol(ctx context.Context, symbol string) (int, error)

	// CountOpenedSince returns trades opened at or after the cutoff,
	// regardless of current status. Feeds the daily trade cap.
	CountOpenedSince(ctx context.Context, cutoff time.Time) (int, error)

	// UpdateStop tightens the stop of an ACTIVE trade. Returns
	// ErrAlreadyClosed if the trade is not ACTIVE.
	UpdateStop(ctx context.Context, id string, stop float64) error

	// Close transitions an ACTIVE trade to CLOSED with the exit details.
	// Returns ErrAlreadyClosed if the trade is not ACTIVE; callers treat
	// that as an idempotent no-op.
	Close(ctx context.Context, id string, exitReason string, exitPrice float64, at time.Time) error
}

// PendingApprovalStore provides access to pending_approvals storage.
type PendingApprovalStore interface {
	// Insert adds a new approval. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, a *domain.PendingApproval) error

	// GetByID retrieves an approval by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.PendingApproval, error)

	// ListPending retrieves all PENDING approvals, ordered by created_at ASC.
	ListPending(ctx context.Context) ([]*domain.PendingApproval, error)

	// Resolve transitions a PENDING approval to APPROVED or DECLINED.
	// Returns ErrAlreadyResolved if it is no longer PENDING.
	Resolve(ctx context.Context, id string, status domain.ApprovalStatus, at time.Time) error
}

// RunRecordStore provides access to run_records storage. Append-only.
type RunRecordStore interface {
	// Insert adds a run record. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.RunRecord, error)

	// ListRecent retrieves the most recent runs, ordered by started_at
	// DESC, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*domain.RunRecord, error)
}

// ConfigStore provides access to the single automation config document.
type ConfigStore interface {
	// Get retrieves the current config. Returns ErrNotFound when no
	// config has been seeded yet.
	Get(ctx context.Context) (*domain.AutomationConfig, error)

	// Put stores cfg if the stored version still equals expectVersion.
	// Returns ErrVersionConflict on a lost race. expectVersion 0 seeds
	// the first document.
	Put(ctx context.Context, cfg *domain.AutomationConfig, expectVersion int64) error
}

// SignalEventStore records every evaluator emission for audit. Append-heavy.
type SignalEventStore interface {
	// Insert adds one event.
	Insert(ctx context.Context, e *domain.SignalEvent) error

	// InsertBulk adds multiple events in one batch.
	InsertBulk(ctx context.Context, events []*domain.SignalEvent) error

	// ListBySymbol retrieves events for a symbol within [start, end],
	// ordered by at ASC.
	ListBySymbol(ctx context.Context, symbol string, start, end time.Time) ([]*domain.SignalEvent, error)
}

// CandleStore caches fetched candle series. Append-heavy.
type CandleStore interface {
	// PutCandles stores a series for symbol/interval; duplicate bars are
	// acceptable and resolved at read time.
	PutCandles(ctx context.Context, symbol, interval string, candles []domain.Candle) error

	// GetCandles retrieves bars for symbol/interval within [start, end],
	// ordered by time ASC.
	GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error)
}

// DedupIndex remembers the last admitted signal per dedup key so repeat
// signals inside the window are suppressed.
type DedupIndex interface {
	// Last returns the admission time and confidence recorded for key.
	// Returns ErrNotFound when the key has no live entry.
	Last(ctx context.Context, key string) (time.Time, int, error)

	// Put records an admission for key with the given ttl.
	Put(ctx context.Context, key string, at time.Time, confidence int, ttl time.Duration) error
}

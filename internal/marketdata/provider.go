// Package marketdata supplies candle series and live quotes. Providers
// are opaque collaborators: the pipeline only requires that a fetch either
// yields a usable series or fails fast so the evaluation degrades to
// NO_TRADE.
package marketdata

import (
	"context"
	"errors"
	"time"

	"trade-autopilot/internal/domain"
)

// Range describes the candle window to fetch.
type Range struct {
	Interval string
	Start    time.Time
	End      time.Time
}

// Provider fetches OHLCV candles for a symbol.
type Provider interface {
	FetchCandles(ctx context.Context, symbol string, r Range) ([]domain.Candle, error)
}

// ErrInsufficientData is the terminal state of a fetch chain: every
// source was tried and none produced a usable series.
var ErrInsufficientData = errors.New("insufficient market data")

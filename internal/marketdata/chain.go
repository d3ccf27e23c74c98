package marketdata

import (
	"context"
	"log"
	"time"

	"trade-autopilot/internal/domain"
)

// Chain tries an ordered list of providers with a per-attempt timeout.
// The first provider returning at least MinCandles usable bars wins; when
// every attempt fails or comes back short, the chain terminates with
// ErrInsufficientData rather than guessing from a partial series.
type Chain struct {
	providers      []Provider
	attemptTimeout time.Duration
	logger         *log.Logger
}

// NewChain creates a fallback chain.
func NewChain(providers []Provider, attemptTimeout time.Duration, logger *log.Logger) *Chain {
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Chain{
		providers:      providers,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
}

var _ Provider = (*Chain)(nil)

// FetchCandles walks the providers in order.
func (c *Chain) FetchCandles(ctx context.Context, symbol string, r Range) ([]domain.Candle, error) {
	for i, p := range c.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		candles, err := p.FetchCandles(attemptCtx, symbol, r)
		cancel()

		if err != nil {
			c.logger.Printf("[marketdata] source %d failed for %s: %v", i, symbol, err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if len(candles) < domain.MinCandles {
			c.logger.Printf("[marketdata] source %d returned %d candles for %s, need %d",
				i, len(candles), symbol, domain.MinCandles)
			continue
		}
		return candles, nil
	}
	return nil, ErrInsufficientData
}

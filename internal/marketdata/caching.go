package marketdata

import (
	"context"
	"log"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
)

// CachingProvider writes every successful fetch through to a CandleStore
// and serves from the cache when the upstream fails. Cache errors are
// logged, never surfaced: the cache is an accelerator, not a source of
// truth.
type CachingProvider struct {
	upstream Provider
	store    storage.CandleStore
	logger   *log.Logger
}

// NewCachingProvider wraps upstream with a candle cache.
func NewCachingProvider(upstream Provider, store storage.CandleStore, logger *log.Logger) *CachingProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &CachingProvider{upstream: upstream, store: store, logger: logger}
}

var _ Provider = (*CachingProvider)(nil)

// FetchCandles fetches upstream, falling back to cached bars.
func (c *CachingProvider) FetchCandles(ctx context.Context, symbol string, r Range) ([]domain.Candle, error) {
	candles, err := c.upstream.FetchCandles(ctx, symbol, r)
	if err == nil {
		if putErr := c.store.PutCandles(ctx, symbol, r.Interval, candles); putErr != nil {
			c.logger.Printf("[marketdata] cache write failed for %s: %v", symbol, putErr)
		}
		return candles, nil
	}

	cached, cacheErr := c.store.GetCandles(ctx, symbol, r.Interval, r.Start, r.End)
	if cacheErr != nil {
		c.logger.Printf("[marketdata] cache read failed for %s: %v", symbol, cacheErr)
		return nil, err
	}
	if len(cached) < domain.MinCandles {
		return nil, err
	}
	c.logger.Printf("[marketdata] serving %d cached candles for %s after upstream failure: %v",
		len(cached), symbol, err)
	return cached, nil
}

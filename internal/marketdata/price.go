package marketdata

import (
	"context"
	"fmt"
	"time"
)

// PriceSource resolves the current price for a symbol. Unlike QuoteSource
// it may do I/O and so takes a context and returns an error.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// CandleCloseSource prices a symbol off its most recent candle close.
type CandleCloseSource struct {
	provider Provider
	interval string
	lookback time.Duration
	clock    func() time.Time
}

// NewCandleCloseSource creates a candle-backed price source.
func NewCandleCloseSource(provider Provider, interval string, lookback time.Duration) *CandleCloseSource {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	return &CandleCloseSource{
		provider: provider,
		interval: interval,
		lookback: lookback,
		clock:    time.Now,
	}
}

var _ PriceSource = (*CandleCloseSource)(nil)

// LatestPrice returns the close of the newest available bar.
func (s *CandleCloseSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	now := s.clock().UTC()
	candles, err := s.provider.FetchCandles(ctx, symbol, Range{
		Interval: s.interval,
		Start:    now.Add(-s.lookback),
		End:      now,
	})
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no candles for %s", symbol)
	}
	return candles[len(candles)-1].Close, nil
}

// QuoteFirstSource answers from a live quote cache when one is available
// and falls back to a slower source otherwise.
type QuoteFirstSource struct {
	quotes   QuoteSource
	fallback PriceSource
}

// NewQuoteFirstSource combines a quote cache with a fallback.
func NewQuoteFirstSource(quotes QuoteSource, fallback PriceSource) *QuoteFirstSource {
	return &QuoteFirstSource{quotes: quotes, fallback: fallback}
}

var _ PriceSource = (*QuoteFirstSource)(nil)

// LatestPrice prefers the cached quote.
func (s *QuoteFirstSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if s.quotes != nil {
		if p, ok := s.quotes.LatestPrice(symbol); ok {
			return p, nil
		}
	}
	if s.fallback == nil {
		return 0, fmt.Errorf("no quote for %s and no fallback source", symbol)
	}
	return s.fallback.LatestPrice(ctx, symbol)
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trade-autopilot/internal/domain"
)

// HTTPProvider fetches candles from a JSON REST endpoint of the shape
// GET {base}/candles?symbol=&interval=&start=&end= returning
// {"candles":[{"time":unix,"open":..,"high":..,"low":..,"close":..,"volume":..}]}.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider with a per-request timeout.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ Provider = (*HTTPProvider)(nil)

type wireCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// FetchCandles retrieves and cleans a candle series.
func (p *HTTPProvider) FetchCandles(ctx context.Context, symbol string, r Range) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", r.Interval)
	q.Set("start", strconv.FormatInt(r.Start.Unix(), 10))
	q.Set("end", strconv.FormatInt(r.End.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build candle request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("candle endpoint returned %d for %s: %s", resp.StatusCode, symbol, string(data))
	}

	var out struct {
		Candles []wireCandle `json:"candles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode candle response for %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(out.Candles))
	for _, c := range out.Candles {
		candles = append(candles, domain.Candle{
			Time:   time.Unix(c.Time, 0).UTC(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return domain.CleanCandles(candles), nil
}

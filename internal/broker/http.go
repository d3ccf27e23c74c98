package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPBroker talks to a brokerage REST API. It implements both
// TokenSource and OrderExecutor; the token is cached until shortly before
// its reported expiry.
type HTTPBroker struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewHTTPBroker creates a broker client with a per-request timeout.
func NewHTTPBroker(baseURL, clientID, clientSecret string, timeout time.Duration) *HTTPBroker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBroker{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

var (
	_ TokenSource   = (*HTTPBroker)(nil)
	_ OrderExecutor = (*HTTPBroker)(nil)
)

// AccessToken returns the cached token or fetches a fresh one.
func (b *HTTPBroker) AccessToken(ctx context.Context, scope string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && time.Now().Before(b.tokenExpiry) {
		return b.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     b.clientID,
		"client_secret": b.clientSecret,
		"scope":         scope,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}

	b.token = out.AccessToken
	// Refresh a minute early so in-flight orders never carry a stale token.
	b.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return b.token, nil
}

// PlaceOrder submits a market order.
func (b *HTTPBroker) PlaceOrder(ctx context.Context, symbol, action string, quantity int64) (Order, error) {
	token, err := b.AccessToken(ctx, "trade")
	if err != nil {
		return Order{}, fmt.Errorf("order auth: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"symbol":   symbol,
		"action":   action,
		"quantity": quantity,
		"type":     "MARKET",
	})
	if err != nil {
		return Order{}, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("place order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Order{}, fmt.Errorf("order endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Order{}, fmt.Errorf("decode order response: %w", err)
	}
	if out.OrderID == "" {
		return Order{}, fmt.Errorf("order endpoint returned empty order id")
	}
	return Order{ID: out.OrderID}, nil
}

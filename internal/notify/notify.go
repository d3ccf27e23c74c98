// Package notify pushes pipeline events to external channels. Delivery is
// best-effort: a failed notification is logged and never blocks or fails
// the tick that produced it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Event kinds emitted by the pipeline.
const (
	KindTradeOpened    = "trade_opened"
	KindApprovalQueued = "approval_queued"
	KindTradeClosed    = "trade_closed"
	KindOrderError     = "order_error"
	KindHalt           = "halt"
)

// Event is one notification payload.
type Event struct {
	Kind    string    `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier writes events to the process log.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

var _ Notifier = (*LogNotifier)(nil)

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	n.logger.Printf("[notify] %s %s: %s", e.Kind, e.Symbol, e.Message)
	return nil
}

// WebhookNotifier POSTs events as JSON to a single URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with a request timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

var _ Notifier = (*WebhookNotifier)(nil)

// Notify delivers one event.
func (n *WebhookNotifier) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s event: %w", e.Kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d for %s event", resp.StatusCode, e.Kind)
	}
	return nil
}

// Fanout delivers each event to every notifier, returning the first error
// after all deliveries were attempted.
type Fanout []Notifier

var _ Notifier = Fanout(nil)

// Notify fans the event out.
func (f Fanout) Notify(ctx context.Context, e Event) error {
	var first error
	for _, n := range f {
		if err := n.Notify(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// QuoteSource exposes the latest known price per symbol.
type QuoteSource interface {
	// LatestPrice returns the most recent price for symbol, with false
	// when no quote has been seen yet.
	LatestPrice(symbol string) (float64, bool)
}

// QuoteStreamConfig configures reconnect and timeout behavior.
type QuoteStreamConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultQuoteStreamConfig returns the defaults used by the service.
func DefaultQuoteStreamConfig() QuoteStreamConfig {
	return QuoteStreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// QuoteStream keeps a websocket subscription open for a symbol set and
// caches the latest trade price per symbol. The stream is best-effort:
// consumers must tolerate a missing quote and fall back to candle closes.
type QuoteStream struct {
	endpoint string
	symbols  []string
	config   QuoteStreamConfig
	logger   *log.Logger

	mu     sync.RWMutex
	prices map[string]float64

	cancel context.CancelFunc
	done   chan struct{}
}

var _ QuoteSource = (*QuoteStream)(nil)

// NewQuoteStream creates a stream for the given symbols and starts the
// read loop. Close must be called to release the connection.
func NewQuoteStream(ctx context.Context, endpoint string, symbols []string, config *QuoteStreamConfig, logger *log.Logger) *QuoteStream {
	cfg := DefaultQuoteStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &QuoteStream{
		endpoint: endpoint,
		symbols:  append([]string(nil), symbols...),
		config:   cfg,
		logger:   logger,
		prices:   make(map[string]float64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(runCtx)
	return s
}

// LatestPrice returns the most recent quote for symbol.
func (s *QuoteStream) LatestPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok
}

// Close stops the stream.
func (s *QuoteStream) Close() {
	s.cancel()
	<-s.done
}

type quoteMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func (s *QuoteStream) run(ctx context.Context) {
	defer close(s.done)

	delay := s.config.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Printf("[quotes] stream dropped: %v; reconnecting in %s", err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

func (s *QuoteStream) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.config.WriteTimeout}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.endpoint, err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	sub := map[string]any{"op": "subscribe", "symbols": s.symbols}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg quoteMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Symbol == "" || msg.Price <= 0 {
			continue
		}
		s.mu.Lock()
		s.prices[msg.Symbol] = msg.Price
		s.mu.Unlock()
	}
}

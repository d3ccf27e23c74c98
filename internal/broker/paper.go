package broker

import (
	"context"
	"fmt"
	"sync/atomic"
)

// PaperExecutor fills every order instantly with a synthetic order ID.
// Used for paper tracking and in tests.
type PaperExecutor struct {
	seq atomic.Uint64
}

// NewPaperExecutor creates a paper executor.
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{}
}

var _ OrderExecutor = (*PaperExecutor)(nil)

// PlaceOrder records nothing and always succeeds.
func (p *PaperExecutor) PlaceOrder(_ context.Context, symbol, action string, quantity int64) (Order, error) {
	n := p.seq.Add(1)
	return Order{ID: fmt.Sprintf("paper-%s-%s-%d-%d", symbol, action, quantity, n)}, nil
}

// StaticTokenSource returns a fixed token; useful for tests and for
// brokers authenticated out of band.
type StaticTokenSource string

var _ TokenSource = StaticTokenSource("")

// AccessToken returns the static token.
func (s StaticTokenSource) AccessToken(context.Context, string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no token configured")
	}
	return string(s), nil
}

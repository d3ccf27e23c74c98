// Package broker defines the brokerage collaborators. Token refresh and
// order routing internals stay behind these interfaces; the pipeline only
// sees an access token and an order ID.
package broker

import "context"

// TokenSource supplies a valid access token for the requested scope.
type TokenSource interface {
	// AccessToken returns a token usable right now, refreshing if needed.
	AccessToken(ctx context.Context, scope string) (string, error)
}

// Order is a placed order acknowledgment.
type Order struct {
	ID string
}

// OrderExecutor places orders against the brokerage.
type OrderExecutor interface {
	// PlaceOrder submits a market order and returns the broker order ID.
	PlaceOrder(ctx context.Context, symbol, action string, quantity int64) (Order, error)
}

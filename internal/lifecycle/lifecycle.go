// Package lifecycle manages open trades: ratcheting stops, target and stop
// exits, and time stops. Exits are status transitions on the trade record;
// live order unwinding is routed through the broker before the record
// closes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trade-autopilot/internal/broker"
	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/marketdata"
	"trade-autopilot/internal/storage"
)

// Deps are the manager's collaborators. Orders may be nil when no live
// trades exist; closing a live trade without an executor is an error.
type Deps struct {
	Trades storage.TrackedTradeStore
	Prices marketdata.PriceSource
	Orders broker.OrderExecutor

	Clock  func() time.Time
	Logger *log.Logger
}

// Manager runs the exit pass over open trades.
type Manager struct {
	deps Deps
}

// New creates a manager.
func New(deps Deps) (*Manager, error) {
	if deps.Trades == nil || deps.Prices == nil {
		return nil, errors.New("lifecycle requires a trade store and a price source")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Manager{deps: deps}, nil
}

// Run evaluates every ACTIVE trade once. Per trade the checks run in a
// fixed order: trail the stop first, then target, then stop (against the
// trailed level), then time stop. Each trade yields zero or more actions;
// a price failure yields an ERROR action and the pass continues. With
// dryRun set decisions are computed but nothing is persisted.
func (m *Manager) Run(ctx context.Context, cfg *domain.AutomationConfig, dryRun bool) ([]domain.RunAction, error) {
	if !cfg.ManageOpenTradesEnabled {
		return nil, nil
	}
	open, err := m.deps.Trades.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}

	var actions []domain.RunAction
	for _, trade := range open {
		if ctx.Err() != nil {
			return actions, ctx.Err()
		}
		acts, err := m.manageOne(ctx, trade, cfg, dryRun)
		if err != nil {
			return actions, err
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

func (m *Manager) manageOne(ctx context.Context, trade *domain.TrackedTrade, cfg *domain.AutomationConfig, dryRun bool) ([]domain.RunAction, error) {
	now := m.deps.Clock().UTC()

	price, err := m.deps.Prices.LatestPrice(ctx, trade.Symbol)
	if err != nil {
		m.deps.Logger.Printf("[lifecycle] no price for %s (trade %s): %v", trade.Symbol, trade.ID, err)
		return []domain.RunAction{{
			Symbol:     trade.Symbol,
			StrategyID: trade.StrategyID,
			Decision:   domain.DecisionError,
			Reason:     fmt.Sprintf("price unavailable: %v", err),
			TradeID:    trade.ID,
		}}, nil
	}

	var actions []domain.RunAction
	stop := trade.Stop

	if newStop, ok := m.trailStop(trade, cfg, price); ok {
		if !dryRun {
			err := m.deps.Trades.UpdateStop(ctx, trade.ID, newStop)
			if errors.Is(err, storage.ErrAlreadyClosed) || errors.Is(err, storage.ErrNotFound) {
				return actions, nil
			}
			if err != nil {
				return actions, fmt.Errorf("update stop for %s: %w", trade.ID, err)
			}
		}
		m.deps.Logger.Printf("[lifecycle] trade %s stop ratcheted %.2f -> %.2f at %.2f",
			trade.ID, stop, newStop, price)
		stop = newStop
		actions = append(actions, domain.RunAction{
			Symbol:     trade.Symbol,
			StrategyID: trade.StrategyID,
			Decision:   domain.DecisionStopUpdate,
			Reason:     fmt.Sprintf("stop ratcheted to %.2f", newStop),
			TradeID:    trade.ID,
		})
	}

	exitReason := exitFor(trade, cfg, price, stop, now)
	if exitReason == "" {
		return actions, nil
	}

	if !dryRun {
		if err := m.closeTrade(ctx, trade, exitReason, price, now); err != nil {
			if errors.Is(err, storage.ErrAlreadyClosed) || errors.Is(err, storage.ErrNotFound) {
				return actions, nil
			}
			return actions, err
		}
	}
	m.deps.Logger.Printf("[lifecycle] trade %s closed (%s) at %.2f", trade.ID, exitReason, price)
	actions = append(actions, domain.RunAction{
		Symbol:     trade.Symbol,
		StrategyID: trade.StrategyID,
		Decision:   domain.DecisionClose,
		Reason:     exitReason,
		TradeID:    trade.ID,
	})
	return actions, nil
}

// trailStop returns a tightened stop once the trade has earned enough R.
// The stop only ever moves toward the target, never away from it.
func (m *Manager) trailStop(trade *domain.TrackedTrade, cfg *domain.AutomationConfig, price float64) (float64, bool) {
	if !cfg.EnableTrailingStop || trade.InitialRisk <= 0 {
		return 0, false
	}
	if trade.UnrealizedR(price) < cfg.TrailAfterR {
		return 0, false
	}
	lockIn := cfg.TrailLockInR * trade.InitialRisk
	if trade.Action == domain.ActionSell {
		newStop := trade.Entry - lockIn
		if newStop < trade.Target {
			newStop = trade.Target
		}
		if newStop < trade.Stop {
			return newStop, true
		}
		return 0, false
	}
	newStop := trade.Entry + lockIn
	if newStop > trade.Target {
		newStop = trade.Target
	}
	if newStop > trade.Stop {
		return newStop, true
	}
	return 0, false
}

// exitFor picks the exit reason for the current price, or "" to hold.
func exitFor(trade *domain.TrackedTrade, cfg *domain.AutomationConfig, price, stop float64, now time.Time) string {
	if trade.Action == domain.ActionSell {
		if price <= trade.Target {
			return domain.ExitReasonTarget
		}
		if price >= stop {
			return domain.ExitReasonStop
		}
	} else {
		if price >= trade.Target {
			return domain.ExitReasonTarget
		}
		if price <= stop {
			return domain.ExitReasonStop
		}
	}
	if cfg.TimeStopDays > 0 {
		deadline := trade.OpenedAt.Add(time.Duration(cfg.TimeStopDays) * 24 * time.Hour)
		if !now.Before(deadline) {
			return domain.ExitReasonTimeStop
		}
	}
	return ""
}

// closeTrade unwinds the broker position for live trades, then closes the
// record. The record transition is last so a failed unwind leaves the
// trade ACTIVE and retried next tick.
func (m *Manager) closeTrade(ctx context.Context, trade *domain.TrackedTrade, reason string, price float64, now time.Time) error {
	if !trade.Paper {
		if m.deps.Orders == nil {
			return fmt.Errorf("live trade %s needs an order executor to close", trade.ID)
		}
		closing := trade.Action.Opposite()
		order, err := m.deps.Orders.PlaceOrder(ctx, trade.Symbol, string(closing), trade.Quantity)
		if err != nil {
			return fmt.Errorf("unwind live trade %s: %w", trade.ID, err)
		}
		m.deps.Logger.Printf("[lifecycle] live trade %s unwound via order %s", trade.ID, order.ID)
	}
	return m.deps.Trades.Close(ctx, trade.ID, reason, price, now)
}

// Package gate is the admission controller between actionable signals and
// execution. Every gate failure produces an explicit decision with reasons;
// silence is never an outcome.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"trade-autopilot/internal/broker"
	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/idhash"
	"trade-autopilot/internal/storage"
)

// Regular session bounds, minutes after midnight in the market timezone.
const (
	marketOpenMinutes  = 9*60 + 30
	marketCloseMinutes = 16 * 60
)

// tokenScope is the OAuth scope requested before placing live orders.
const tokenScope = "trading"

// Deps are the gate's collaborators.
type Deps struct {
	Trades    storage.TrackedTradeStore
	Approvals storage.PendingApprovalStore
	Dedup     storage.DedupIndex
	Tokens    broker.TokenSource
	Orders    broker.OrderExecutor

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time
	// Location is the market timezone; defaults to America/New_York.
	Location *time.Location
	Logger   *log.Logger
}

// Result is the outcome of one admission or approval resolution.
type Result struct {
	Decision domain.Decision
	Reasons  []string
	Trade    *domain.TrackedTrade
	Approval *domain.PendingApproval
}

// Gate runs the ordered admission checks.
type Gate struct {
	deps Deps
}

// New creates a gate, filling in default clock, timezone and logger.
func New(deps Deps) (*Gate, error) {
	if deps.Trades == nil || deps.Approvals == nil || deps.Dedup == nil {
		return nil, errors.New("gate requires trade, approval and dedup stores")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			return nil, fmt.Errorf("load market timezone: %w", err)
		}
		deps.Location = loc
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Gate{deps: deps}, nil
}

// DedupKey builds the suppression key for a signal.
func DedupKey(symbol, strategyID string, action domain.Action) string {
	return fmt.Sprintf("%s|%s|%s", symbol, strategyID, action)
}

// Admit runs the full gate sequence against an actionable signal. A
// rejection is a normal Result, not an error; errors are reserved for
// storage failures. With dryRun set the decision is computed but nothing
// is persisted, no order placed and no dedup entry written.
func (g *Gate) Admit(ctx context.Context, sig domain.Signal, cfg *domain.AutomationConfig, dryRun bool) (Result, error) {
	if !sig.Actionable() || sig.TradePlan == nil {
		return Result{}, fmt.Errorf("signal for %s is not actionable", sig.Symbol)
	}
	now := g.deps.Clock().In(g.deps.Location)

	if cfg.Mode == domain.ModeOff {
		return reject("automation mode is OFF"), nil
	}
	if cfg.HaltNewEntries {
		r := "new entries halted"
		if cfg.HaltReason != "" {
			r = fmt.Sprintf("new entries halted: %s", cfg.HaltReason)
		}
		return reject(r), nil
	}

	if min := cfg.MinConfidenceFor(sig.StrategyID); sig.Confidence < min {
		return reject(fmt.Sprintf("confidence %d below gate minimum %d", sig.Confidence, min)), nil
	}

	if r, ok := g.checkTradingHours(now, cfg); !ok {
		return reject(r), nil
	}

	if r, ok, err := g.checkDedup(ctx, sig, cfg); err != nil {
		return Result{}, err
	} else if !ok {
		return reject(r), nil
	}

	if r, ok, err := g.checkPositionCaps(ctx, sig.Symbol, cfg); err != nil {
		return Result{}, err
	} else if !ok {
		return reject(r), nil
	}

	if r, ok, err := g.checkDailyCap(ctx, cfg, now); err != nil {
		return Result{}, err
	} else if !ok {
		return reject(r), nil
	}

	quantity, r, ok := sizeEntry(sig.TradePlan.Entry, cfg)
	if !ok {
		return reject(r), nil
	}

	if cfg.Mode.IsLive() {
		if !cfg.SymbolAllowedLive(sig.Symbol) {
			return reject(fmt.Sprintf("%s not on live allowlist", sig.Symbol)), nil
		}
		if !cfg.LiveArmed(now) {
			return reject("live execution not armed"), nil
		}
	}

	return g.execute(ctx, sig, cfg, quantity, now, dryRun)
}

// execute carries out the admitted entry per mode.
func (g *Gate) execute(ctx context.Context, sig domain.Signal, cfg *domain.AutomationConfig, quantity int64, now time.Time, dryRun bool) (Result, error) {
	switch cfg.Mode {
	case domain.ModePaper:
		trade := g.buildTrade(sig, quantity, now, true, "")
		if dryRun {
			return Result{Decision: domain.DecisionTrackPaper, Trade: trade}, nil
		}
		if err := g.deps.Trades.Insert(ctx, trade); err != nil {
			return Result{}, fmt.Errorf("insert paper trade: %w", err)
		}
		g.putDedup(ctx, sig, cfg, now)
		g.deps.Logger.Printf("[gate] paper trade %s opened: %s %s x%d @ %.2f",
			trade.ID, trade.Action, trade.Symbol, trade.Quantity, trade.Entry)
		return Result{Decision: domain.DecisionTrackPaper, Trade: trade}, nil

	case domain.ModeLiveConfirm:
		approval := &domain.PendingApproval{
			ID:                   idhash.ApprovalID(sig.Symbol, sig.StrategyID, now.Unix()),
			Symbol:               sig.Symbol,
			StrategyID:           sig.StrategyID,
			Signal:               sig,
			Quantity:             quantity,
			EstimatedNotionalUSD: float64(quantity) * sig.TradePlan.Entry,
			Status:               domain.ApprovalPending,
			CreatedAt:            now.UTC(),
		}
		if dryRun {
			return Result{Decision: domain.DecisionQueueApproval, Approval: approval}, nil
		}
		if err := g.deps.Approvals.Insert(ctx, approval); err != nil {
			return Result{}, fmt.Errorf("queue approval: %w", err)
		}
		g.putDedup(ctx, sig, cfg, now)
		g.deps.Logger.Printf("[gate] approval %s queued: %s %s x%d",
			approval.ID, sig.Action, sig.Symbol, quantity)
		return Result{Decision: domain.DecisionQueueApproval, Approval: approval}, nil

	case domain.ModeLive:
		trade := g.buildTrade(sig, quantity, now, false, "")
		if dryRun {
			return Result{Decision: domain.DecisionExecuteLive, Trade: trade}, nil
		}
		order, err := g.placeOrder(ctx, sig.Symbol, sig.Action, quantity)
		if err != nil {
			g.deps.Logger.Printf("[gate] live order failed for %s: %v", sig.Symbol, err)
			return Result{
				Decision: domain.DecisionError,
				Reasons:  []string{fmt.Sprintf("order placement failed: %v", err)},
			}, nil
		}
		trade.OrderID = order.ID
		if err := g.deps.Trades.Insert(ctx, trade); err != nil {
			return Result{}, fmt.Errorf("insert live trade: %w", err)
		}
		g.putDedup(ctx, sig, cfg, now)
		g.deps.Logger.Printf("[gate] live trade %s opened via order %s", trade.ID, order.ID)
		return Result{Decision: domain.DecisionExecuteLive, Trade: trade}, nil
	}
	return Result{}, fmt.Errorf("unhandled mode %q", cfg.Mode)
}

// ResolvePending applies a human decision to a queued approval. DECLINE is
// idempotent: declining an already declined approval is a no-op success.
// APPROVE re-runs the stateful gates before placing the order; a failed
// re-check declines the approval rather than leaving it pending.
func (g *Gate) ResolvePending(ctx context.Context, id string, approve bool, cfg *domain.AutomationConfig) (Result, error) {
	approval, err := g.deps.Approvals.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	now := g.deps.Clock().In(g.deps.Location)

	if !approve {
		if approval.Status == domain.ApprovalDeclined {
			return Result{Decision: domain.DecisionReject, Reasons: []string{"already declined"}, Approval: approval}, nil
		}
		if err := g.deps.Approvals.Resolve(ctx, id, domain.ApprovalDeclined, now.UTC()); err != nil {
			return Result{}, err
		}
		g.deps.Logger.Printf("[gate] approval %s declined", id)
		return Result{Decision: domain.DecisionReject, Reasons: []string{"declined"}, Approval: approval}, nil
	}

	if approval.Status != domain.ApprovalPending {
		return Result{}, storage.ErrAlreadyResolved
	}

	// Conditions may have drifted since the approval was queued: re-check
	// the caps, sizing and live-safety gates against current state.
	var reasons []string
	if r, ok, err := g.checkPositionCaps(ctx, approval.Symbol, cfg); err != nil {
		return Result{}, err
	} else if !ok {
		reasons = append(reasons, r)
	}
	if len(reasons) == 0 {
		if r, ok, err := g.checkDailyCap(ctx, cfg, now); err != nil {
			return Result{}, err
		} else if !ok {
			reasons = append(reasons, r)
		}
	}
	if len(reasons) == 0 {
		notional := float64(approval.Quantity) * approval.Signal.TradePlan.Entry
		if notional > cfg.MaxNotionalPerTradeUSD {
			reasons = append(reasons, fmt.Sprintf("notional $%.2f exceeds cap $%.2f",
				notional, cfg.MaxNotionalPerTradeUSD))
		}
	}
	if len(reasons) == 0 {
		if !cfg.Mode.IsLive() {
			reasons = append(reasons, fmt.Sprintf("mode is %s, live execution disabled", cfg.Mode))
		} else if !cfg.SymbolAllowedLive(approval.Symbol) {
			reasons = append(reasons, fmt.Sprintf("%s not on live allowlist", approval.Symbol))
		} else if !cfg.LiveArmed(now) {
			reasons = append(reasons, "live execution not armed")
		}
	}
	if len(reasons) > 0 {
		if err := g.deps.Approvals.Resolve(ctx, id, domain.ApprovalDeclined, now.UTC()); err != nil {
			return Result{}, err
		}
		g.deps.Logger.Printf("[gate] approval %s declined on re-check: %v", id, reasons)
		return Result{Decision: domain.DecisionReject, Reasons: reasons, Approval: approval}, nil
	}

	order, err := g.placeOrder(ctx, approval.Symbol, approval.Signal.Action, approval.Quantity)
	if err != nil {
		// The approval stays pending; the operator can retry or decline.
		return Result{
			Decision: domain.DecisionError,
			Reasons:  []string{fmt.Sprintf("order placement failed: %v", err)},
			Approval: approval,
		}, nil
	}
	trade := g.buildTrade(approval.Signal, approval.Quantity, now, false, order.ID)
	if err := g.deps.Trades.Insert(ctx, trade); err != nil {
		return Result{}, fmt.Errorf("insert approved trade: %w", err)
	}
	if err := g.deps.Approvals.Resolve(ctx, id, domain.ApprovalApproved, now.UTC()); err != nil {
		return Result{}, err
	}
	g.deps.Logger.Printf("[gate] approval %s executed as trade %s via order %s", id, trade.ID, order.ID)
	return Result{Decision: domain.DecisionExecuteLive, Trade: trade, Approval: approval}, nil
}

func (g *Gate) checkTradingHours(now time.Time, cfg *domain.AutomationConfig) (string, bool) {
	minutes := now.Hour()*60 + now.Minute()
	if cfg.RequireMarketHours {
		wd := now.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return "outside market hours", false
		}
		if minutes < marketOpenMinutes || minutes >= marketCloseMinutes {
			return "outside market hours", false
		}
	}
	for _, w := range cfg.NoTradeWindows {
		start, err := domain.ParseClock(w.Start)
		if err != nil {
			continue
		}
		end, err := domain.ParseClock(w.End)
		if err != nil {
			continue
		}
		if minutes >= start && minutes < end {
			return fmt.Sprintf("inside no-trade window %s-%s", w.Start, w.End), false
		}
	}
	return "", true
}

func (g *Gate) checkDedup(ctx context.Context, sig domain.Signal, cfg *domain.AutomationConfig) (string, bool, error) {
	if cfg.SignalDedupMinutes <= 0 {
		return "", true, nil
	}
	key := DedupKey(sig.Symbol, sig.StrategyID, sig.Action)
	_, prevConf, err := g.deps.Dedup.Last(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup: %w", err)
	}
	if sig.Confidence-prevConf >= cfg.DedupMinConfidenceDelta {
		// A materially stronger repeat is allowed through.
		return "", true, nil
	}
	return fmt.Sprintf("duplicate signal within %dm dedup window", cfg.SignalDedupMinutes), false, nil
}

func (g *Gate) checkPositionCaps(ctx context.Context, symbol string, cfg *domain.AutomationConfig) (string, bool, error) {
	bySymbol, err := g.deps.Trades.CountOpenBySymbol(ctx, symbol)
	if err != nil {
		return "", false, fmt.Errorf("count open by symbol: %w", err)
	}
	if bySymbol >= cfg.MaxOpenPositionsPerSymbol {
		return fmt.Sprintf("open position cap for %s reached (%d)", symbol, cfg.MaxOpenPositionsPerSymbol), false, nil
	}
	total, err := g.deps.Trades.CountOpen(ctx)
	if err != nil {
		return "", false, fmt.Errorf("count open: %w", err)
	}
	if total >= cfg.MaxOpenPositionsTotal {
		return fmt.Sprintf("total open position cap reached (%d)", cfg.MaxOpenPositionsTotal), false, nil
	}
	return "", true, nil
}

func (g *Gate) checkDailyCap(ctx context.Context, cfg *domain.AutomationConfig, now time.Time) (string, bool, error) {
	if cfg.MaxTradesPerDay <= 0 {
		return "", true, nil
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.deps.Location)
	opened, err := g.deps.Trades.CountOpenedSince(ctx, midnight)
	if err != nil {
		return "", false, fmt.Errorf("count opened today: %w", err)
	}
	if opened >= cfg.MaxTradesPerDay {
		return fmt.Sprintf("daily trade cap reached (%d)", cfg.MaxTradesPerDay), false, nil
	}
	return "", true, nil
}

// sizeEntry converts the configured notional into whole shares.
func sizeEntry(entry float64, cfg *domain.AutomationConfig) (int64, string, bool) {
	if entry <= 0 {
		return 0, "entry price must be positive", false
	}
	quantity := int64(math.Floor(cfg.PositionNotionalUSD / entry))
	if quantity < 1 {
		quantity = 1
	}
	notional := float64(quantity) * entry
	if notional <= cfg.MaxNotionalPerTradeUSD {
		return quantity, "", true
	}
	if cfg.NotionalCapPolicy == domain.NotionalTruncate {
		quantity = int64(math.Floor(cfg.MaxNotionalPerTradeUSD / entry))
		if quantity < 1 {
			return 0, fmt.Sprintf("entry price %.2f exceeds notional cap %.2f", entry, cfg.MaxNotionalPerTradeUSD), false
		}
		return quantity, "", true
	}
	return 0, fmt.Sprintf("notional $%.2f exceeds cap $%.2f", notional, cfg.MaxNotionalPerTradeUSD), false
}

func (g *Gate) buildTrade(sig domain.Signal, quantity int64, now time.Time, paper bool, orderID string) *domain.TrackedTrade {
	openedAt := now.UTC()
	plan := sig.TradePlan
	return &domain.TrackedTrade{
		ID:          idhash.TradeID(sig.Symbol, sig.StrategyID, string(sig.Action), openedAt.Unix()),
		Symbol:      sig.Symbol,
		StrategyID:  sig.StrategyID,
		Action:      sig.Action,
		Quantity:    quantity,
		Entry:       plan.Entry,
		Stop:        plan.Stop,
		Target:      plan.Target,
		InitialRisk: plan.Risk(),
		Paper:       paper,
		OrderID:     orderID,
		OpenedAt:    openedAt,
		Status:      domain.TradeStatusActive,
	}
}

func (g *Gate) placeOrder(ctx context.Context, symbol string, action domain.Action, quantity int64) (broker.Order, error) {
	if g.deps.Tokens == nil || g.deps.Orders == nil {
		return broker.Order{}, errors.New("live execution not configured")
	}
	if _, err := g.deps.Tokens.AccessToken(ctx, tokenScope); err != nil {
		return broker.Order{}, fmt.Errorf("acquire trading token: %w", err)
	}
	return g.deps.Orders.PlaceOrder(ctx, symbol, string(action), quantity)
}

func (g *Gate) putDedup(ctx context.Context, sig domain.Signal, cfg *domain.AutomationConfig, now time.Time) {
	if cfg.SignalDedupMinutes <= 0 {
		return
	}
	key := DedupKey(sig.Symbol, sig.StrategyID, sig.Action)
	ttl := time.Duration(cfg.SignalDedupMinutes) * time.Minute
	if err := g.deps.Dedup.Put(ctx, key, now.UTC(), sig.Confidence, ttl); err != nil {
		// Suppression is best-effort; a missed entry means at worst one
		// duplicate admission attempt that the position caps then stop.
		g.deps.Logger.Printf("[gate] dedup write failed for %s: %v", key, err)
	}
}

func reject(reasons ...string) Result {
	return Result{Decision: domain.DecisionReject, Reasons: reasons}
}

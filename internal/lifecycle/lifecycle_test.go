package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage/memory"
)

type stubPrices map[string]float64

func (s stubPrices) LatestPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := s[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}

var openedAt = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func manageConfig() *domain.AutomationConfig {
	cfg := domain.DefaultAutomationConfig()
	cfg.ManageOpenTradesEnabled = true
	cfg.EnableTrailingStop = true
	cfg.TrailAfterR = 1.0
	cfg.TrailLockInR = 0.5
	cfg.TimeStopDays = 5
	return &cfg
}

func newManager(t *testing.T, trades *memory.TrackedTradeStore, prices stubPrices, now time.Time) *Manager {
	t.Helper()
	m, err := New(Deps{
		Trades: trades,
		Prices: prices,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func openTrade(t *testing.T, store *memory.TrackedTradeStore, id, symbol string, action domain.Action, entry, stop, target float64) *domain.TrackedTrade {
	t.Helper()
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	tr := &domain.TrackedTrade{
		ID: id, Symbol: symbol, StrategyID: "trend_follow",
		Action: action, Quantity: 10,
		Entry: entry, Stop: stop, Target: target, InitialRisk: risk,
		Paper: true, OpenedAt: openedAt, Status: domain.TradeStatusActive,
	}
	if err := store.Insert(context.Background(), tr); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return tr
}

func TestRunTargetExit(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 105, 101, 111)
	m := newManager(t, store, stubPrices{"AAPL": 111}, openedAt.Add(2*24*time.Hour))
	ctx := context.Background()

	actions, err := m.Run(ctx, manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Decision != domain.DecisionClose {
		t.Fatalf("actions = %+v; want one CLOSE", actions)
	}
	if actions[0].Reason != domain.ExitReasonTarget {
		t.Fatalf("reason = %q; want target", actions[0].Reason)
	}

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.TradeStatusClosed || got.ExitPrice == nil || *got.ExitPrice != 111 {
		t.Fatalf("trade = %+v; want CLOSED at 111", got)
	}

	// A second pass sees no open trades and does nothing.
	actions, err = m.Run(ctx, manageConfig(), false)
	if err != nil || len(actions) != 0 {
		t.Fatalf("second pass = %+v, %v; want empty", actions, err)
	}
}

func TestRunStopExit(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 100, 98, 104)
	m := newManager(t, store, stubPrices{"AAPL": 97.5}, openedAt.Add(time.Hour))

	actions, err := m.Run(context.Background(), manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Reason != domain.ExitReasonStop {
		t.Fatalf("actions = %+v; want one stop CLOSE", actions)
	}
}

func TestRunSellTargetExit(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "XOM", domain.ActionSell, 100, 103, 94)
	m := newManager(t, store, stubPrices{"XOM": 93.8}, openedAt.Add(time.Hour))

	actions, err := m.Run(context.Background(), manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Reason != domain.ExitReasonTarget {
		t.Fatalf("actions = %+v; want one target CLOSE", actions)
	}
}

func TestRunRatchetNeverLoosens(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 100, 98, 104)
	prices := stubPrices{"AAPL": 102}
	m := newManager(t, store, prices, openedAt.Add(time.Hour))
	ctx := context.Background()

	// 1R in profit: stop moves to entry + 0.5R = 101.
	actions, err := m.Run(ctx, manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Decision != domain.DecisionStopUpdate {
		t.Fatalf("actions = %+v; want one STOP_UPDATE", actions)
	}
	got, _ := store.GetByID(ctx, "t1")
	if got.Stop != 101 {
		t.Fatalf("stop = %v; want 101", got.Stop)
	}

	// Same price again: the stop stays where it is.
	actions, err = m.Run(ctx, manageConfig(), false)
	if err != nil || len(actions) != 0 {
		t.Fatalf("repeat pass = %+v, %v; want no actions", actions, err)
	}

	// Price falls back through the ratcheted stop: exit at the new level.
	prices["AAPL"] = 100.9
	actions, err = m.Run(ctx, manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Reason != domain.ExitReasonStop {
		t.Fatalf("actions = %+v; want stop CLOSE", actions)
	}
}

func TestRunRatchetThenStopSamePass(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	// Deep in profit: the trail clamps at the target rather than crossing it.
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 100, 98, 104)
	cfg := manageConfig()
	cfg.TrailLockInR = 3.0
	m := newManager(t, store, stubPrices{"AAPL": 103.5}, openedAt.Add(time.Hour))

	actions, err := m.Run(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Stop ratchets to the target level (104 clamp), then the same pass
	// exits against the trailed stop.
	if len(actions) != 2 {
		t.Fatalf("actions = %+v; want STOP_UPDATE then CLOSE", actions)
	}
	if actions[0].Decision != domain.DecisionStopUpdate || actions[1].Decision != domain.DecisionClose {
		t.Fatalf("actions = %+v; want STOP_UPDATE then CLOSE", actions)
	}
	if actions[1].Reason != domain.ExitReasonStop {
		t.Fatalf("exit reason = %q; want stop", actions[1].Reason)
	}
}

func TestRunTimeStop(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 100, 98, 104)
	m := newManager(t, store, stubPrices{"AAPL": 100.5}, openedAt.Add(6*24*time.Hour))

	actions, err := m.Run(context.Background(), manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Reason != domain.ExitReasonTimeStop {
		t.Fatalf("actions = %+v; want time_stop CLOSE", actions)
	}
}

func TestRunPriceFailureContinues(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	ctx := context.Background()
	for i, tr := range []*domain.TrackedTrade{
		{ID: "t1", Symbol: "GHOST", StrategyID: "trend_follow", Action: domain.ActionBuy,
			Quantity: 10, Entry: 100, Stop: 98, Target: 104, InitialRisk: 2, Paper: true,
			Status: domain.TradeStatusActive},
		{ID: "t2", Symbol: "AAPL", StrategyID: "trend_follow", Action: domain.ActionBuy,
			Quantity: 10, Entry: 105, Stop: 101, Target: 111, InitialRisk: 4, Paper: true,
			Status: domain.TradeStatusActive},
	} {
		tr.OpenedAt = openedAt.Add(time.Duration(i) * time.Minute)
		if err := store.Insert(ctx, tr); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	m := newManager(t, store, stubPrices{"AAPL": 111}, openedAt.Add(time.Hour))

	actions, err := m.Run(context.Background(), manageConfig(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %+v; want ERROR then CLOSE", actions)
	}
	if actions[0].Decision != domain.DecisionError || actions[0].TradeID != "t1" {
		t.Fatalf("first action = %+v; want ERROR for t1", actions[0])
	}
	if actions[1].Decision != domain.DecisionClose || actions[1].TradeID != "t2" {
		t.Fatalf("second action = %+v; want CLOSE for t2", actions[1])
	}
}

func TestRunDryRunDoesNotMutate(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 105, 101, 111)
	m := newManager(t, store, stubPrices{"AAPL": 111}, openedAt.Add(time.Hour))
	ctx := context.Background()

	actions, err := m.Run(ctx, manageConfig(), true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Decision != domain.DecisionClose {
		t.Fatalf("actions = %+v; want one CLOSE decision", actions)
	}
	got, _ := store.GetByID(ctx, "t1")
	if got.Status != domain.TradeStatusActive {
		t.Fatalf("dry run closed the trade: %+v", got)
	}
}

func TestRunManagementDisabled(t *testing.T) {
	store := memory.NewTrackedTradeStore()
	openTrade(t, store, "t1", "AAPL", domain.ActionBuy, 105, 101, 111)
	cfg := manageConfig()
	cfg.ManageOpenTradesEnabled = false
	m := newManager(t, store, stubPrices{"AAPL": 111}, openedAt.Add(time.Hour))

	actions, err := m.Run(context.Background(), cfg, false)
	if err != nil || actions != nil {
		t.Fatalf("Run = %+v, %v; want nothing when management is off", actions, err)
	}
}

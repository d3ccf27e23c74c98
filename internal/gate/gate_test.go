package gate

import (
	"context"
	"strings"
	"testing"
	"time"

	"trade-autopilot/internal/broker"
	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage/memory"
)

// tuesdayTenAM is a weekday timestamp inside regular session hours when
// the market timezone is pinned to UTC.
var tuesdayTenAM = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type harness struct {
	gate      *Gate
	trades    *memory.TrackedTradeStore
	approvals *memory.PendingApprovalStore
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		trades:    memory.NewTrackedTradeStore(),
		approvals: memory.NewPendingApprovalStore(),
		now:       tuesdayTenAM,
	}
	g, err := New(Deps{
		Trades:    h.trades,
		Approvals: h.approvals,
		Dedup:     memory.NewDedupIndex(),
		Tokens:    broker.StaticTokenSource("test-token"),
		Orders:    broker.NewPaperExecutor(),
		Clock:     func() time.Time { return h.now },
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.gate = g
	return h
}

func paperConfig() *domain.AutomationConfig {
	cfg := domain.DefaultAutomationConfig()
	cfg.Mode = domain.ModePaper
	cfg.MaxOpenPositionsPerSymbol = 1
	cfg.MaxOpenPositionsTotal = 5
	return &cfg
}

func buySignal(symbol string, confidence int) domain.Signal {
	return domain.Signal{
		Symbol:     symbol,
		Instrument: domain.InstrumentStock,
		Action:     domain.ActionBuy,
		Confidence: confidence,
		StrategyID: "trend_follow",
		PresetID:   "balanced",
		Why:        []string{"close above fast EMA"},
		TradePlan: &domain.TradePlan{
			Entry:   100,
			Stop:    98,
			Target:  104,
			Horizon: "5d",
		},
		GeneratedAt: tuesdayTenAM,
	}
}

func wantReason(t *testing.T, res Result, substr string) {
	t.Helper()
	if res.Decision != domain.DecisionReject {
		t.Fatalf("decision = %s; want REJECT", res.Decision)
	}
	for _, r := range res.Reasons {
		if strings.Contains(r, substr) {
			return
		}
	}
	t.Fatalf("reasons %v missing %q", res.Reasons, substr)
}

func TestAdmitPaperOpensTrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), paperConfig(), false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if res.Decision != domain.DecisionTrackPaper {
		t.Fatalf("decision = %s; want TRACK_PAPER", res.Decision)
	}
	if res.Trade == nil || !res.Trade.Paper {
		t.Fatal("expected a paper trade")
	}
	if res.Trade.Quantity != 10 {
		t.Fatalf("quantity = %d; want 10 ($1000 at $100)", res.Trade.Quantity)
	}
	if res.Trade.InitialRisk != 2 {
		t.Fatalf("initial risk = %v; want 2", res.Trade.InitialRisk)
	}

	open, err := h.trades.ListOpen(ctx)
	if err != nil || len(open) != 1 {
		t.Fatalf("open trades = %d, %v; want 1", len(open), err)
	}
}

func TestAdmitModeOff(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.Mode = domain.ModeOff

	res, err := h.gate.Admit(context.Background(), buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "OFF")
}

func TestAdmitHaltSwitch(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.HaltNewEntries = true
	cfg.HaltReason = "earnings week"

	res, err := h.gate.Admit(context.Background(), buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "halted")
	wantReason(t, res, "earnings week")
}

func TestAdmitConfidenceFloor(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.GlobalMinConfidence = 60

	res, err := h.gate.Admit(context.Background(), buySignal("AAPL", 59), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "below gate minimum")
}

func TestAdmitStrategyOverrideFloor(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.GlobalMinConfidence = 50
	override := 80
	cfg.Strategies = map[string]domain.StrategySetting{
		"trend_follow": {Enabled: true, PresetID: "balanced", MinConfidenceOverride: &override},
	}

	res, err := h.gate.Admit(context.Background(), buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "below gate minimum 80")
}

func TestAdmitMarketHours(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()

	// Saturday.
	h.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	res, err := h.gate.Admit(context.Background(), buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "outside market hours")

	// Weekday pre-open.
	h.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	res, err = h.gate.Admit(context.Background(), buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "outside market hours")
}

func TestAdmitNoTradeWindow(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.NoTradeWindows = []domain.TimeWindow{{Start: "09:30", End: "10:15"}}

	res, err := h.gate.Admit(context.Background(), buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "no-trade window")
}

func TestAdmitDedupThenCapOrdering(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil || res.Decision != domain.DecisionTrackPaper {
		t.Fatalf("first admit = %s, %v; want TRACK_PAPER", res.Decision, err)
	}

	// Same signal again inside the window: suppressed before the caps run.
	res, err = h.gate.Admit(ctx, buySignal("AAPL", 72), cfg, false)
	if err != nil {
		t.Fatalf("second admit failed: %v", err)
	}
	wantReason(t, res, "dedup window")

	// A materially stronger repeat clears dedup and falls through to the
	// per-symbol position cap instead.
	res, err = h.gate.Admit(ctx, buySignal("AAPL", 85), cfg, false)
	if err != nil {
		t.Fatalf("third admit failed: %v", err)
	}
	wantReason(t, res, "open position cap for AAPL")
}

func TestAdmitTotalPositionCap(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.MaxOpenPositionsTotal = 2
	ctx := context.Background()

	for _, sym := range []string{"AAPL", "MSFT"} {
		if res, err := h.gate.Admit(ctx, buySignal(sym, 70), cfg, false); err != nil || res.Decision != domain.DecisionTrackPaper {
			t.Fatalf("admit %s = %s, %v", sym, res.Decision, err)
		}
	}
	res, err := h.gate.Admit(ctx, buySignal("NVDA", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "total open position cap")
}

func TestAdmitDailyTradeCap(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.MaxTradesPerDay = 1
	ctx := context.Background()

	if res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false); err != nil || res.Decision != domain.DecisionTrackPaper {
		t.Fatalf("first admit = %s, %v", res.Decision, err)
	}
	res, err := h.gate.Admit(ctx, buySignal("MSFT", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "daily trade cap")
}

func TestAdmitNotionalCapPolicies(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.PositionNotionalUSD = 2000
	cfg.MaxNotionalPerTradeUSD = 1000
	ctx := context.Background()

	sig := buySignal("AAPL", 70)
	sig.TradePlan.Entry = 400
	sig.TradePlan.Stop = 392

	// Reject policy: 5 shares x $400 = $2000 > $1000 cap.
	cfg.NotionalCapPolicy = domain.NotionalReject
	res, err := h.gate.Admit(ctx, sig, cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "exceeds cap")

	// Truncate policy: floor($1000 / $400) = 2 shares.
	cfg.NotionalCapPolicy = domain.NotionalTruncate
	res, err = h.gate.Admit(ctx, sig, cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if res.Decision != domain.DecisionTrackPaper {
		t.Fatalf("decision = %s (%v); want TRACK_PAPER", res.Decision, res.Reasons)
	}
	if res.Trade.Quantity != 2 {
		t.Fatalf("quantity = %d; want 2 after truncation", res.Trade.Quantity)
	}
}

func TestAdmitTruncateBelowOneShareRejects(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	cfg.PositionNotionalUSD = 1000
	cfg.MaxNotionalPerTradeUSD = 1000
	cfg.NotionalCapPolicy = domain.NotionalTruncate

	sig := buySignal("BRKA", 70)
	sig.TradePlan.Entry = 5000

	res, err := h.gate.Admit(context.Background(), sig, cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "exceeds notional cap")
}

func TestAdmitDryRunDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	cfg := paperConfig()
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, true)
	if err != nil || res.Decision != domain.DecisionTrackPaper {
		t.Fatalf("dry-run admit = %s, %v; want TRACK_PAPER", res.Decision, err)
	}
	if n, _ := h.trades.CountOpen(ctx); n != 0 {
		t.Fatalf("dry run persisted %d trades", n)
	}

	// No dedup entry was written either: the same signal admits for real.
	res, err = h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil || res.Decision != domain.DecisionTrackPaper {
		t.Fatalf("real admit after dry run = %s, %v; want TRACK_PAPER", res.Decision, err)
	}
}

func liveConfirmConfig(now time.Time) *domain.AutomationConfig {
	cfg := domain.DefaultAutomationConfig()
	cfg.Mode = domain.ModeLiveConfirm
	cfg.LiveAllowlistSymbols = []string{"AAPL"}
	armed := now.Add(30 * time.Minute)
	cfg.LiveArmedUntil = &armed
	return &cfg
}

func TestAdmitLiveConfirmQueuesApproval(t *testing.T) {
	h := newHarness(t)
	cfg := liveConfirmConfig(h.now)
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if res.Decision != domain.DecisionQueueApproval {
		t.Fatalf("decision = %s (%v); want QUEUE_APPROVAL", res.Decision, res.Reasons)
	}
	if res.Approval == nil || res.Approval.Status != domain.ApprovalPending {
		t.Fatal("expected a PENDING approval")
	}
	if res.Approval.EstimatedNotionalUSD != 1000 {
		t.Fatalf("estimated notional = %v; want 1000", res.Approval.EstimatedNotionalUSD)
	}
	if n, _ := h.trades.CountOpen(ctx); n != 0 {
		t.Fatal("no trade should open before approval")
	}
}

func TestAdmitLiveRequiresAllowlistAndArming(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := liveConfirmConfig(h.now)
	res, err := h.gate.Admit(ctx, buySignal("MSFT", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "allowlist")

	cfg = liveConfirmConfig(h.now)
	cfg.LiveArmedUntil = nil
	res, err = h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	wantReason(t, res, "not armed")
}

func TestResolvePendingApprove(t *testing.T) {
	h := newHarness(t)
	cfg := liveConfirmConfig(h.now)
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil || res.Approval == nil {
		t.Fatalf("queue failed: %v", err)
	}

	got, err := h.gate.ResolvePending(ctx, res.Approval.ID, true, cfg)
	if err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}
	if got.Decision != domain.DecisionExecuteLive {
		t.Fatalf("decision = %s (%v); want EXECUTE_LIVE", got.Decision, got.Reasons)
	}
	if got.Trade == nil || got.Trade.OrderID == "" || got.Trade.Paper {
		t.Fatal("expected a live trade with an order ID")
	}

	stored, err := h.approvals.GetByID(ctx, res.Approval.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.ApprovalApproved {
		t.Fatalf("approval status = %s; want APPROVED", stored.Status)
	}
}

func TestResolvePendingDeclineIsIdempotent(t *testing.T) {
	h := newHarness(t)
	cfg := liveConfirmConfig(h.now)
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil || res.Approval == nil {
		t.Fatalf("queue failed: %v", err)
	}
	id := res.Approval.ID

	if _, err := h.gate.ResolvePending(ctx, id, false, cfg); err != nil {
		t.Fatalf("first decline failed: %v", err)
	}
	// Declining again is a no-op, not an error.
	if _, err := h.gate.ResolvePending(ctx, id, false, cfg); err != nil {
		t.Fatalf("second decline failed: %v", err)
	}

	stored, _ := h.approvals.GetByID(ctx, id)
	if stored.Status != domain.ApprovalDeclined {
		t.Fatalf("approval status = %s; want DECLINED", stored.Status)
	}
	if n, _ := h.trades.CountOpen(ctx); n != 0 {
		t.Fatal("declined approval must not open a trade")
	}
}

func TestResolvePendingApproveAfterDisarmDeclines(t *testing.T) {
	h := newHarness(t)
	cfg := liveConfirmConfig(h.now)
	ctx := context.Background()

	res, err := h.gate.Admit(ctx, buySignal("AAPL", 70), cfg, false)
	if err != nil || res.Approval == nil {
		t.Fatalf("queue failed: %v", err)
	}

	// The arming window expires before the human gets to it.
	h.now = h.now.Add(time.Hour)

	got, err := h.gate.ResolvePending(ctx, res.Approval.ID, true, cfg)
	if err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}
	wantReason(t, got, "not armed")

	stored, _ := h.approvals.GetByID(ctx, res.Approval.ID)
	if stored.Status != domain.ApprovalDeclined {
		t.Fatalf("approval status = %s; want DECLINED after failed re-check", stored.Status)
	}
	if n, _ := h.trades.CountOpen(ctx); n != 0 {
		t.Fatal("failed re-check must not open a trade")
	}
}

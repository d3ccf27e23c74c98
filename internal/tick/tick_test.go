package tick

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"trade-autopilot/internal/broker"
	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/evaluator"
	"trade-autopilot/internal/gate"
	"trade-autopilot/internal/lifecycle"
	"trade-autopilot/internal/marketdata"
	"trade-autopilot/internal/registry"
	"trade-autopilot/internal/storage/memory"
)

// tickNow is a weekday timestamp inside session hours with the gate's
// market timezone pinned to UTC.
var tickNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

// stubProvider serves canned candle series keyed by symbol.
type stubProvider struct {
	series map[string][]domain.Candle
	block  chan struct{} // when set, FetchCandles waits until closed
}

func (p *stubProvider) FetchCandles(ctx context.Context, symbol string, _ marketdata.Range) ([]domain.Candle, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s, ok := p.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for %s", symbol)
	}
	return s, nil
}

type stubPrices map[string]float64

func (s stubPrices) LatestPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := s[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}

func trendingSeries(n int) []domain.Candle {
	base := tickNow.Add(-time.Duration(n) * 24 * time.Hour)
	out := make([]domain.Candle, n)
	for i := range out {
		c := 100 + 0.3*float64(i)
		out[i] = domain.Candle{
			Time: base.Add(time.Duration(i) * 24 * time.Hour),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
		}
	}
	return out
}

func flatSeries(n int) []domain.Candle {
	base := tickNow.Add(-time.Duration(n) * 24 * time.Hour)
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Time: base.Add(time.Duration(i) * 24 * time.Hour),
			Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000,
		}
	}
	return out
}

type harness struct {
	orch    *Orchestrator
	config  *memory.ConfigStore
	runs    *memory.RunRecordStore
	events  *memory.SignalEventStore
	trades  *memory.TrackedTradeStore
	prices  stubPrices
	candles *stubProvider
}

func newHarness(t *testing.T, cfg domain.AutomationConfig) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		config: memory.NewConfigStore(),
		runs:   memory.NewRunRecordStore(),
		events: memory.NewSignalEventStore(),
		trades: memory.NewTrackedTradeStore(),
		prices: stubPrices{},
		candles: &stubProvider{series: map[string][]domain.Candle{
			"AAPL": trendingSeries(60),
			"MSFT": flatSeries(60),
			"NVDA": trendingSeries(60),
		}},
	}
	if err := h.config.Put(ctx, &cfg, 0); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	clock := func() time.Time { return tickNow }
	g, err := gate.New(gate.Deps{
		Trades:    h.trades,
		Approvals: memory.NewPendingApprovalStore(),
		Dedup:     memory.NewDedupIndex(),
		Tokens:    broker.StaticTokenSource("t"),
		Orders:    broker.NewPaperExecutor(),
		Clock:     clock,
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("gate.New failed: %v", err)
	}
	lc, err := lifecycle.New(lifecycle.Deps{
		Trades: h.trades,
		Prices: h.prices,
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("lifecycle.New failed: %v", err)
	}
	orch, err := New(Options{
		Config:    h.config,
		Runs:      h.runs,
		Events:    h.events,
		Candles:   h.candles,
		Evaluator: evaluator.New(registry.MustNew()),
		Gate:      g,
		Lifecycle: lc,
		Workers:   2,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.orch = orch
	return h
}

func tickConfig(symbols ...string) domain.AutomationConfig {
	cfg := domain.DefaultAutomationConfig()
	cfg.Mode = domain.ModePaper
	cfg.SymbolUniverse = symbols
	cfg.Strategies = map[string]domain.StrategySetting{
		registry.StrategyTrendFollow: {Enabled: true, PresetID: domain.PresetBalanced},
	}
	return cfg
}

func findAction(actions []domain.RunAction, decision domain.Decision) *domain.RunAction {
	for i := range actions {
		if actions[i].Decision == decision {
			return &actions[i]
		}
	}
	return nil
}

func TestRunPaperTick(t *testing.T) {
	h := newHarness(t, tickConfig("AAPL", "MSFT"))
	ctx := context.Background()

	record, err := h.orch.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !record.OK || record.Mode != domain.ModePaper {
		t.Fatalf("record = ok=%t mode=%s; want ok PAPER", record.OK, record.Mode)
	}

	tracked := findAction(record.Actions, domain.DecisionTrackPaper)
	if tracked == nil || tracked.Symbol != "AAPL" || tracked.TradeID == "" {
		t.Fatalf("actions = %+v; want TRACK_PAPER for AAPL with trade ID", record.Actions)
	}
	noTrade := findAction(record.Actions, domain.DecisionNoTrade)
	if noTrade == nil || noTrade.Symbol != "MSFT" {
		t.Fatalf("actions = %+v; want NO_TRADE for MSFT", record.Actions)
	}

	if n, _ := h.trades.CountOpen(ctx); n != 1 {
		t.Fatalf("open trades = %d; want 1", n)
	}

	// The run record is persisted and the meta tallies match the actions.
	stored, err := h.runs.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("run record not persisted: %v", err)
	}
	if stored.Meta.PairsEvaluated != 2 || stored.Meta.EntriesAdmitted != 1 {
		t.Fatalf("meta = %+v; want 2 pairs, 1 admitted", stored.Meta)
	}

	// Both evaluations left an audit event.
	for _, sym := range []string{"AAPL", "MSFT"} {
		events, err := h.events.ListBySymbol(ctx, sym, tickNow.Add(-time.Hour), tickNow.Add(time.Hour))
		if err != nil || len(events) != 1 {
			t.Fatalf("events for %s = %d, %v; want 1", sym, len(events), err)
		}
	}
}

func TestRunDryRunPersistsRecordOnly(t *testing.T) {
	h := newHarness(t, tickConfig("AAPL"))
	ctx := context.Background()

	record, err := h.orch.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !record.DryRun {
		t.Fatal("record not marked dry_run")
	}
	if a := findAction(record.Actions, domain.DecisionTrackPaper); a == nil {
		t.Fatalf("actions = %+v; want a TRACK_PAPER decision", record.Actions)
	}
	if n, _ := h.trades.CountOpen(ctx); n != 0 {
		t.Fatalf("dry run opened %d trades", n)
	}
	if _, err := h.runs.GetByID(ctx, record.ID); err != nil {
		t.Fatalf("dry run record not persisted: %v", err)
	}

	events, _ := h.events.ListBySymbol(ctx, "AAPL", tickNow.Add(-time.Hour), tickNow.Add(time.Hour))
	if len(events) != 0 {
		t.Fatalf("dry run wrote %d signal events", len(events))
	}
}

func TestRunModeOffSkipsEvaluation(t *testing.T) {
	cfg := tickConfig("AAPL")
	cfg.Mode = domain.ModeOff
	h := newHarness(t, cfg)

	record, err := h.orch.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	skipped := findAction(record.Actions, domain.DecisionSkipped)
	if skipped == nil || skipped.Reason != "automation mode is OFF" {
		t.Fatalf("actions = %+v; want SKIPPED for OFF mode", record.Actions)
	}
	if findAction(record.Actions, domain.DecisionNoTrade) != nil {
		t.Fatal("evaluation ran despite OFF mode")
	}
}

func TestRunPerTickAdmissionCap(t *testing.T) {
	cfg := tickConfig("AAPL", "NVDA")
	cfg.MaxNewPositionsPerTick = 1
	h := newHarness(t, cfg)

	record, err := h.orch.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.Meta.EntriesAdmitted != 1 {
		t.Fatalf("admitted = %d; want 1", record.Meta.EntriesAdmitted)
	}
	rejected := findAction(record.Actions, domain.DecisionReject)
	if rejected == nil || rejected.Reason != "per-tick admission cap reached (1)" {
		t.Fatalf("actions = %+v; want a cap rejection", record.Actions)
	}
}

func TestRunMarketDataFailureIsolated(t *testing.T) {
	h := newHarness(t, tickConfig("GHOST", "AAPL"))

	record, err := h.orch.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	errAction := findAction(record.Actions, domain.DecisionError)
	if errAction == nil || errAction.Symbol != "GHOST" {
		t.Fatalf("actions = %+v; want ERROR for GHOST", record.Actions)
	}
	if a := findAction(record.Actions, domain.DecisionTrackPaper); a == nil || a.Symbol != "AAPL" {
		t.Fatalf("actions = %+v; AAPL should still admit", record.Actions)
	}
}

func TestRunLifecycleCloseInTick(t *testing.T) {
	h := newHarness(t, tickConfig("MSFT"))
	ctx := context.Background()

	trade := &domain.TrackedTrade{
		ID: "t1", Symbol: "AAPL", StrategyID: registry.StrategyTrendFollow,
		Action: domain.ActionBuy, Quantity: 10,
		Entry: 105, Stop: 101, Target: 111, InitialRisk: 4,
		Paper: true, OpenedAt: tickNow.Add(-24 * time.Hour), Status: domain.TradeStatusActive,
	}
	if err := h.trades.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	h.prices["AAPL"] = 111

	record, err := h.orch.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	closed := findAction(record.Actions, domain.DecisionClose)
	if closed == nil || closed.TradeID != "t1" || closed.Reason != domain.ExitReasonTarget {
		t.Fatalf("actions = %+v; want CLOSE of t1 at target", record.Actions)
	}
	if record.Meta.TradesClosed != 1 {
		t.Fatalf("meta = %+v; want 1 closed", record.Meta)
	}
}

func TestRunRejectsConcurrentTick(t *testing.T) {
	h := newHarness(t, tickConfig("AAPL"))
	h.candles.block = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := h.orch.Run(context.Background(), false)
		done <- err
	}()
	<-started
	// Wait for the first run to reach the blocking fetch.
	time.Sleep(50 * time.Millisecond)

	if _, err := h.orch.Run(context.Background(), false); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("second run err = %v; want ErrTickInProgress", err)
	}

	close(h.candles.block)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The lock is released afterwards.
	if _, err := h.orch.Run(context.Background(), false); err != nil {
		t.Fatalf("follow-up run failed: %v", err)
	}
}

func TestRunMissingConfigStillWritesRecord(t *testing.T) {
	h := &harness{
		config: memory.NewConfigStore(),
		runs:   memory.NewRunRecordStore(),
		trades: memory.NewTrackedTradeStore(),
		prices: stubPrices{},
	}
	clock := func() time.Time { return tickNow }
	g, err := gate.New(gate.Deps{
		Trades:    h.trades,
		Approvals: memory.NewPendingApprovalStore(),
		Dedup:     memory.NewDedupIndex(),
		Clock:     clock,
		Location:  time.UTC,
	})
	if err != nil {
		t.Fatalf("gate.New failed: %v", err)
	}
	lc, err := lifecycle.New(lifecycle.Deps{Trades: h.trades, Prices: h.prices, Clock: clock})
	if err != nil {
		t.Fatalf("lifecycle.New failed: %v", err)
	}
	orch, err := New(Options{
		Config:    h.config,
		Runs:      h.runs,
		Candles:   &stubProvider{series: map[string][]domain.Candle{}},
		Evaluator: evaluator.New(registry.MustNew()),
		Gate:      g,
		Lifecycle: lc,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	record, err := orch.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected an error with no seeded config")
	}
	if record == nil || record.OK || record.Error == "" {
		t.Fatalf("record = %+v; want a persisted failure record", record)
	}
	if _, err := h.runs.GetByID(context.Background(), record.ID); err != nil {
		t.Fatalf("failure record not persisted: %v", err)
	}
}

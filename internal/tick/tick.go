// Package tick coordinates one pipeline pass: lifecycle management of
// open trades, evaluation of the symbol universe, and gated admission of
// the resulting signals. Every pass, including dry runs and failed runs,
// persists a run record.
package tick

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/evaluator"
	"trade-autopilot/internal/gate"
	"trade-autopilot/internal/idhash"
	"trade-autopilot/internal/lifecycle"
	"trade-autopilot/internal/marketdata"
	"trade-autopilot/internal/observability"
	"trade-autopilot/internal/storage"
)

// ErrTickInProgress is returned when a tick is requested while another is
// still running. Ticks never queue; the caller retries on its own schedule.
var ErrTickInProgress = errors.New("tick already running")

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	Config    storage.ConfigStore
	Runs      storage.RunRecordStore
	Candles   marketdata.Provider
	Evaluator *evaluator.Evaluator
	Gate      *gate.Gate
	Lifecycle *lifecycle.Manager

	// Optional
	Events  storage.SignalEventStore
	Metrics *observability.Metrics

	CandleInterval string        // default "1d"
	Lookback       time.Duration // default 180 days
	Workers        int           // default 4

	Clock  func() time.Time
	Logger *log.Logger
}

// Orchestrator runs ticks one at a time.
type Orchestrator struct {
	opts Options
	mu   sync.Mutex // held for the duration of a tick
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil || opts.Runs == nil || opts.Candles == nil ||
		opts.Evaluator == nil || opts.Gate == nil || opts.Lifecycle == nil {
		return nil, errors.New("tick orchestrator missing required collaborators")
	}
	if opts.CandleInterval == "" {
		opts.CandleInterval = "1d"
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 180 * 24 * time.Hour
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Orchestrator{opts: opts}, nil
}

// Run executes one tick. Returns ErrTickInProgress without blocking when
// another tick holds the lock. The returned record is always persisted,
// even when the run fails partway.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool) (*domain.RunRecord, error) {
	if !o.mu.TryLock() {
		if o.opts.Metrics != nil {
			o.opts.Metrics.TickLockContended.Inc()
		}
		return nil, ErrTickInProgress
	}
	defer o.mu.Unlock()

	startedAt := o.opts.Clock().UTC()
	record := &domain.RunRecord{
		ID:        idhash.RunID(startedAt.UnixNano(), dryRun),
		StartedAt: startedAt,
		DryRun:    dryRun,
	}
	o.opts.Logger.Printf("[tick] run %s started (dry_run=%t)", record.ID, dryRun)

	cfg, err := o.opts.Config.Get(ctx)
	if err != nil {
		return o.finish(ctx, record, fmt.Errorf("load config: %w", err))
	}
	record.ConfigVersion = cfg.Version
	record.Mode = cfg.Mode

	// Phase 1: manage open trades. Runs in every mode so existing
	// positions are never orphaned by flipping automation off.
	acts, err := o.opts.Lifecycle.Run(ctx, cfg, dryRun)
	record.Actions = append(record.Actions, acts...)
	if err != nil {
		return o.finish(ctx, record, fmt.Errorf("lifecycle pass: %w", err))
	}

	// Phase 2: evaluate the universe.
	if cfg.Mode == domain.ModeOff {
		record.Actions = append(record.Actions, domain.RunAction{
			Decision: domain.DecisionSkipped,
			Reason:   "automation mode is OFF",
		})
		return o.finish(ctx, record, nil)
	}

	evalActions, signals, events := o.evaluateUniverse(ctx, cfg)
	record.Actions = append(record.Actions, evalActions...)

	if !dryRun && o.opts.Events != nil && len(events) > 0 {
		if err := o.opts.Events.InsertBulk(ctx, events); err != nil {
			o.opts.Logger.Printf("[tick] signal event write failed: %v", err)
		}
	}

	// Phase 3: admit actionable signals, strongest first.
	record.Actions = append(record.Actions, o.admit(ctx, signals, cfg, dryRun)...)

	if ctx.Err() != nil {
		record.Actions = append(record.Actions, domain.RunAction{
			Decision: domain.DecisionSkipped,
			Reason:   "tick cancelled",
		})
		return o.finish(ctx, record, ctx.Err())
	}
	return o.finish(ctx, record, nil)
}

// symbolOutcome carries one worker's output back to the collector.
type symbolOutcome struct {
	idx     int
	actions []domain.RunAction
	signals []domain.Signal
	events  []*domain.SignalEvent
}

// evaluateUniverse fans symbols out over a bounded worker pool. Each
// symbol is fetched once and evaluated against every enabled strategy.
func (o *Orchestrator) evaluateUniverse(ctx context.Context, cfg *domain.AutomationConfig) ([]domain.RunAction, []domain.Signal, []*domain.SignalEvent) {
	type enabledStrategy struct {
		id      string
		setting domain.StrategySetting
	}
	var strategies []enabledStrategy
	for id, s := range cfg.Strategies {
		if s.Enabled {
			strategies = append(strategies, enabledStrategy{id: id, setting: s})
		}
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i].id < strategies[j].id })

	if len(strategies) == 0 || len(cfg.SymbolUniverse) == 0 {
		return []domain.RunAction{{
			Decision: domain.DecisionSkipped,
			Reason:   "no enabled strategies or empty symbol universe",
		}}, nil, nil
	}

	now := o.opts.Clock().UTC()
	r := marketdata.Range{
		Interval: o.opts.CandleInterval,
		Start:    now.Add(-o.opts.Lookback),
		End:      now,
	}

	jobs := make(chan int)
	results := make(chan symbolOutcome, len(cfg.SymbolUniverse))
	var wg sync.WaitGroup

	workers := o.opts.Workers
	if workers > len(cfg.SymbolUniverse) {
		workers = len(cfg.SymbolUniverse)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				symbol := cfg.SymbolUniverse[idx]
				out := symbolOutcome{idx: idx}

				if ctx.Err() != nil {
					out.actions = append(out.actions, domain.RunAction{
						Symbol:   symbol,
						Decision: domain.DecisionSkipped,
						Reason:   "tick cancelled",
					})
					results <- out
					continue
				}

				candles, err := o.fetchCandles(ctx, symbol, r)
				if err != nil {
					out.actions = append(out.actions, domain.RunAction{
						Symbol:   symbol,
						Decision: domain.DecisionError,
						Reason:   fmt.Sprintf("market data unavailable: %v", err),
					})
					results <- out
					continue
				}

				for _, strat := range strategies {
					sig, err := o.opts.Evaluator.Evaluate(symbol, strat.id, strat.setting.PresetID, candles, now)
					if err != nil {
						out.actions = append(out.actions, domain.RunAction{
							Symbol:     symbol,
							StrategyID: strat.id,
							Decision:   domain.DecisionError,
							Reason:     err.Error(),
						})
						continue
					}
					out.events = append(out.events, &domain.SignalEvent{
						ID:         idhash.SignalEventID(symbol, strat.id, sig.PresetID, sig.GeneratedAt.Unix()),
						Symbol:     symbol,
						StrategyID: strat.id,
						PresetID:   sig.PresetID,
						Action:     sig.Action,
						Confidence: sig.Confidence,
						Reason:     strings.Join(sig.Why, "; "),
						At:         sig.GeneratedAt,
					})
					if sig.Actionable() {
						out.signals = append(out.signals, sig)
						continue
					}
					out.actions = append(out.actions, domain.RunAction{
						Symbol:     symbol,
						StrategyID: strat.id,
						Decision:   domain.DecisionNoTrade,
						Reason:     strings.Join(sig.Why, "; "),
						Confidence: sig.Confidence,
					})
				}
				results <- out
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range cfg.SymbolUniverse {
			jobs <- i
		}
	}()

	collected := make([]symbolOutcome, 0, len(cfg.SymbolUniverse))
	for i := 0; i < len(cfg.SymbolUniverse); i++ {
		collected = append(collected, <-results)
	}
	wg.Wait()

	// Symbol order keeps run records deterministic regardless of worker
	// scheduling.
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	var actions []domain.RunAction
	var signals []domain.Signal
	var events []*domain.SignalEvent
	for _, out := range collected {
		actions = append(actions, out.actions...)
		signals = append(signals, out.signals...)
		events = append(events, out.events...)
	}
	return actions, signals, events
}

func (o *Orchestrator) fetchCandles(ctx context.Context, symbol string, r marketdata.Range) ([]domain.Candle, error) {
	start := time.Now()
	candles, err := o.opts.Candles.FetchCandles(ctx, symbol, r)
	if o.opts.Metrics != nil {
		o.opts.Metrics.CandleFetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			o.opts.Metrics.CandleFetchErrors.Inc()
		}
	}
	return candles, err
}

// admit runs the gate over actionable signals in confidence-descending
// order, stopping new admissions at the per-tick cap.
func (o *Orchestrator) admit(ctx context.Context, signals []domain.Signal, cfg *domain.AutomationConfig, dryRun bool) []domain.RunAction {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Confidence != signals[j].Confidence {
			return signals[i].Confidence > signals[j].Confidence
		}
		return signals[i].Symbol < signals[j].Symbol
	})

	var actions []domain.RunAction
	admitted := 0
	for _, sig := range signals {
		action := domain.RunAction{
			Symbol:     sig.Symbol,
			StrategyID: sig.StrategyID,
			Confidence: sig.Confidence,
		}
		if admitted >= cfg.MaxNewPositionsPerTick {
			action.Decision = domain.DecisionReject
			action.Reason = fmt.Sprintf("per-tick admission cap reached (%d)", cfg.MaxNewPositionsPerTick)
			actions = append(actions, action)
			continue
		}

		res, err := o.opts.Gate.Admit(ctx, sig, cfg, dryRun)
		if err != nil {
			action.Decision = domain.DecisionError
			action.Reason = err.Error()
			actions = append(actions, action)
			continue
		}
		action.Decision = res.Decision
		action.Reason = strings.Join(res.Reasons, "; ")
		if res.Trade != nil {
			action.TradeID = res.Trade.ID
		}
		if res.Approval != nil {
			action.ApprovalID = res.Approval.ID
		}
		actions = append(actions, action)

		switch res.Decision {
		case domain.DecisionTrackPaper, domain.DecisionQueueApproval, domain.DecisionExecuteLive:
			admitted++
		}
	}
	return actions
}

// finish stamps, tallies and persists the run record. Persistence uses a
// non-cancellable context so a cancelled tick still leaves its record.
func (o *Orchestrator) finish(ctx context.Context, record *domain.RunRecord, runErr error) (*domain.RunRecord, error) {
	record.FinishedAt = o.opts.Clock().UTC()
	record.OK = runErr == nil
	if runErr != nil {
		record.Error = runErr.Error()
	}
	record.Tally()
	o.recordMetrics(record)

	if err := o.opts.Runs.Insert(context.WithoutCancel(ctx), record); err != nil {
		o.opts.Logger.Printf("[tick] run record write failed: %v", err)
		if runErr == nil {
			runErr = fmt.Errorf("persist run record: %w", err)
		}
	}
	o.opts.Logger.Printf("[tick] run %s finished ok=%t: %d pairs, %d admitted, %d rejected, %d closed",
		record.ID, record.OK, record.Meta.PairsEvaluated, record.Meta.EntriesAdmitted,
		record.Meta.EntriesRejected, record.Meta.TradesClosed)
	return record, runErr
}

func (o *Orchestrator) recordMetrics(record *domain.RunRecord) {
	m := o.opts.Metrics
	if m == nil {
		return
	}
	status := "ok"
	if !record.OK {
		status = "error"
	}
	m.TicksTotal.WithLabelValues(status, fmt.Sprintf("%t", record.DryRun)).Inc()
	m.TickDuration.Observe(record.FinishedAt.Sub(record.StartedAt).Seconds())
	m.PairsEvaluated.Add(float64(record.Meta.PairsEvaluated))
	m.ConfigVersion.Set(float64(record.ConfigVersion))
	for _, a := range record.Actions {
		m.Decisions.WithLabelValues(string(a.Decision)).Inc()
		if a.Decision == domain.DecisionClose {
			m.TradeExits.WithLabelValues(a.Reason).Inc()
		}
		if a.Decision == domain.DecisionStopUpdate {
			m.StopsUpdated.Inc()
		}
	}
	if record.OK && !record.DryRun {
		m.LastSuccessfulTick.Set(float64(record.FinishedAt.Unix()))
	}
}

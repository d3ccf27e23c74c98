// Package main runs the unified trading service: a scheduler ticking the
// pipeline at a configured interval, the HTTP control API, and Prometheus
// metrics, with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"trade-autopilot/internal/broker"
	"trade-autopilot/internal/config"
	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/evaluator"
	"trade-autopilot/internal/gate"
	"trade-autopilot/internal/lifecycle"
	"trade-autopilot/internal/marketdata"
	"trade-autopilot/internal/notify"
	"trade-autopilot/internal/observability"
	"trade-autopilot/internal/registry"
	"trade-autopilot/internal/storage"
	chstore "trade-autopilot/internal/storage/clickhouse"
	"trade-autopilot/internal/storage/memory"
	"trade-autopilot/internal/storage/migrations"
	pgstore "trade-autopilot/internal/storage/postgres"
	redisstore "trade-autopilot/internal/storage/redis"
	"trade-autopilot/internal/tick"
)

// Server holds all components of the unified service.
type Server struct {
	cfg    config.Config
	logger *log.Logger

	stores    *allStores
	orch      *tick.Orchestrator
	gate      *gate.Gate
	lifecycle *lifecycle.Manager
	notifier  notify.Notifier

	mu        sync.Mutex
	startedAt time.Time
	lastRun   time.Time
	tickRuns  int
}

// allStores holds all storage implementations.
type allStores struct {
	trades    storage.TrackedTradeStore
	approvals storage.PendingApprovalStore
	runs      storage.RunRecordStore
	config    storage.ConfigStore
	events    storage.SignalEventStore
	candles   storage.CandleStore
	dedup     storage.DedupIndex
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML bootstrap config")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.MarketDataURL == "" {
		logger.Fatal("market_data_url is required (MARKET_DATA_URL)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	srv, quotes, err := buildServer(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatalf("Failed to build server: %v", err)
	}
	if quotes != nil {
		defer quotes.Close()
	}

	if err := seedAutomationConfig(ctx, stores.config, logger); err != nil {
		logger.Fatalf("Failed to seed automation config: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.routes(),
	}

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go srv.runScheduler(ctx)

	logger.Printf("Listening on %s (tick every %s)", cfg.ListenAddr, cfg.TickInterval.Std())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}
	close(done)
	logger.Println("Shutdown complete")
}

// buildServer wires the pipeline components. The returned quote stream is
// nil when no stream endpoint is configured.
func buildServer(ctx context.Context, cfg config.Config, stores *allStores, logger *log.Logger) (*Server, *marketdata.QuoteStream, error) {
	var provider marketdata.Provider = marketdata.NewHTTPProvider(cfg.MarketDataURL, cfg.MarketDataAPIKey, 10*time.Second)
	provider = marketdata.NewChain([]marketdata.Provider{provider}, 10*time.Second, logger)
	provider = marketdata.NewCachingProvider(provider, stores.candles, logger)

	var quotes *marketdata.QuoteStream
	var quoteSource marketdata.QuoteSource
	if cfg.QuoteStreamURL != "" {
		symbols := universeSymbols(ctx, stores.config)
		quotes = marketdata.NewQuoteStream(ctx, cfg.QuoteStreamURL, symbols, nil, logger)
		quoteSource = quotes
	}
	prices := marketdata.NewQuoteFirstSource(quoteSource,
		marketdata.NewCandleCloseSource(provider, cfg.CandleInterval, 0))

	var tokens broker.TokenSource
	var orders broker.OrderExecutor
	if cfg.BrokerURL != "" {
		b := broker.NewHTTPBroker(cfg.BrokerURL, cfg.BrokerClientID, cfg.BrokerClientSecret, 15*time.Second)
		tokens, orders = b, b
	} else {
		tokens = broker.StaticTokenSource("paper")
		orders = broker.NewPaperExecutor()
	}

	g, err := gate.New(gate.Deps{
		Trades:    stores.trades,
		Approvals: stores.approvals,
		Dedup:     stores.dedup,
		Tokens:    tokens,
		Orders:    orders,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	lc, err := lifecycle.New(lifecycle.Deps{
		Trades: stores.trades,
		Prices: prices,
		Orders: orders,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	orch, err := tick.New(tick.Options{
		Config:         stores.config,
		Runs:           stores.runs,
		Events:         stores.events,
		Candles:        provider,
		Evaluator:      evaluator.New(registry.MustNew()),
		Gate:           g,
		Lifecycle:      lc,
		Metrics:        observability.DefaultMetrics,
		CandleInterval: cfg.CandleInterval,
		Workers:        cfg.Workers,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.WebhookURL != "" {
		notifier = notify.Fanout{notifier, notify.NewWebhookNotifier(cfg.WebhookURL, 5*time.Second)}
	}

	return &Server{
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		orch:      orch,
		gate:      g,
		lifecycle: lc,
		notifier:  notifier,
		startedAt: time.Now(),
	}, quotes, nil
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg config.Config) (*allStores, func(), error) {
	if cfg.UseMemory {
		stores := &allStores{
			trades:    memory.NewTrackedTradeStore(),
			approvals: memory.NewPendingApprovalStore(),
			runs:      memory.NewRunRecordStore(),
			config:    memory.NewConfigStore(),
			events:    memory.NewSignalEventStore(),
			candles:   memory.NewCandleStore(),
			dedup:     memory.NewDedupIndex(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	stores := &allStores{
		trades:    pgstore.NewTrackedTradeStore(pool),
		approvals: pgstore.NewPendingApprovalStore(pool),
		runs:      pgstore.NewRunRecordStore(pool),
		config:    pgstore.NewConfigStore(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse carries the append-heavy audit series; optional.
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		stores.events = chstore.NewSignalEventStore(conn)
		stores.candles = chstore.NewCandleStore(conn)
		prev := cleanup
		cleanup = func() { conn.Close(); prev() }
	} else {
		stores.events = memory.NewSignalEventStore()
		stores.candles = memory.NewCandleStore()
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.Dial(ctx, cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		stores.dedup = redisstore.NewDedupIndex(client)
		prev := cleanup
		cleanup = func() { client.Close(); prev() }
	} else {
		stores.dedup = memory.NewDedupIndex()
	}

	return stores, cleanup, nil
}

// seedAutomationConfig writes the default document on first boot.
func seedAutomationConfig(ctx context.Context, store storage.ConfigStore, logger *log.Logger) error {
	_, err := store.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	cfg := domain.DefaultAutomationConfig()
	logger.Printf("Seeding default automation config (mode %s)", cfg.Mode)
	return store.Put(ctx, &cfg, 0)
}

func universeSymbols(ctx context.Context, store storage.ConfigStore) []string {
	cfg, err := store.Get(ctx)
	if err != nil {
		return nil
	}
	return cfg.SymbolUniverse
}

// runScheduler ticks the pipeline at the configured interval.
func (s *Server) runScheduler(ctx context.Context) {
	s.logger.Printf("Starting tick scheduler (interval: %s)", s.cfg.TickInterval.Std())
	ticker := time.NewTicker(s.cfg.TickInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduledTick(ctx)
		}
	}
}

func (s *Server) runScheduledTick(ctx context.Context) {
	record, err := s.orch.Run(ctx, false)
	if errors.Is(err, tick.ErrTickInProgress) {
		s.logger.Println("Tick already running, skipping scheduled run")
		return
	}
	if err != nil {
		s.logger.Printf("Scheduled tick failed: %v", err)
	}
	s.mu.Lock()
	s.lastRun = time.Now()
	s.tickRuns++
	s.mu.Unlock()
	if record != nil {
		s.notifyActions(ctx, record)
	}
}

// notifyActions pushes notifications for the material outcomes of a run.
func (s *Server) notifyActions(ctx context.Context, record *domain.RunRecord) {
	if record.DryRun {
		return
	}
	for _, a := range record.Actions {
		var e notify.Event
		switch a.Decision {
		case domain.DecisionTrackPaper, domain.DecisionExecuteLive:
			e = notify.Event{Kind: notify.KindTradeOpened, Symbol: a.Symbol,
				Message: fmt.Sprintf("%s entry admitted (%s, confidence %d)", a.Symbol, a.Decision, a.Confidence)}
		case domain.DecisionQueueApproval:
			e = notify.Event{Kind: notify.KindApprovalQueued, Symbol: a.Symbol,
				Message: fmt.Sprintf("%s live entry awaiting approval %s", a.Symbol, a.ApprovalID)}
		case domain.DecisionClose:
			e = notify.Event{Kind: notify.KindTradeClosed, Symbol: a.Symbol,
				Message: fmt.Sprintf("trade %s closed (%s)", a.TradeID, a.Reason)}
		default:
			continue
		}
		e.At = time.Now().UTC()
		if err := s.notifier.Notify(ctx, e); err != nil {
			s.logger.Printf("Notification failed: %v", err)
		}
	}
}

// routes builds the HTTP API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("PATCH /config", s.handlePatchConfig)
	mux.HandleFunc("POST /tick", s.handleTick)
	mux.HandleFunc("POST /lifecycle", s.handleLifecycle)
	mux.HandleFunc("GET /approvals", s.handleListApprovals)
	mux.HandleFunc("POST /approvals/{id}", s.handleResolveApproval)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status        string                   `json:"status"`
	Uptime        string                   `json:"uptime"`
	Mode          string                   `json:"mode"`
	ConfigVersion int64                    `json:"config_version"`
	OpenTrades    int                      `json:"open_trades"`
	LastTickRun   time.Time                `json:"last_tick_run,omitempty"`
	TickRuns      int                      `json:"tick_runs"`
	Strategies    map[string]StrategyStats `json:"strategies,omitempty"`
}

// StrategyStats summarizes closed-trade outcomes for one strategy.
type StrategyStats struct {
	Closed int `json:"closed"`
	Wins   int `json:"wins"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	lastRun, tickRuns := s.lastRun, s.tickRuns
	s.mu.Unlock()

	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.startedAt).String(),
		LastTickRun: lastRun,
		TickRuns:    tickRuns,
	}
	if cfg, err := s.stores.config.Get(r.Context()); err == nil {
		resp.Mode = string(cfg.Mode)
		resp.ConfigVersion = cfg.Version
	}
	if n, err := s.stores.trades.CountOpen(r.Context()); err == nil {
		resp.OpenTrades = n
	}
	if recent, err := s.stores.trades.ListRecent(r.Context(), 500); err == nil {
		stats := make(map[string]StrategyStats)
		for _, t := range recent {
			if t.Status != domain.TradeStatusClosed || t.ExitPrice == nil {
				continue
			}
			st := stats[t.StrategyID]
			st.Closed++
			if t.UnrealizedR(*t.ExitPrice) > 0 {
				st.Wins++
			}
			stats[t.StrategyID] = st
		}
		if len(stats) > 0 {
			resp.Strategies = stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.stores.config.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch domain.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode patch: %w", err))
		return
	}
	current, err := s.stores.config.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	updated, err := patch.Apply(*current, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.stores.config.Put(r.Context(), &updated, current.Version); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Printf("Config updated to version %d (mode %s)", updated.Version, updated.Mode)
	if updated.HaltNewEntries && !current.HaltNewEntries {
		s.notifier.Notify(r.Context(), notify.Event{
			Kind:    notify.KindHalt,
			Message: fmt.Sprintf("new entries halted: %s", updated.HaltReason),
			At:      time.Now().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	record, err := s.orch.Run(r.Context(), dryRun)
	if errors.Is(err, tick.ErrTickInProgress) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil && record == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record != nil && !record.DryRun {
		s.mu.Lock()
		s.lastRun = time.Now()
		s.tickRuns++
		s.mu.Unlock()
		s.notifyActions(r.Context(), record)
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	cfg, err := s.stores.config.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	actions, err := s.lifecycle.Run(r.Context(), cfg, dryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dry_run": dryRun, "actions": actions})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := s.stores.approvals.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, approvals)
}

type resolveRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	var approve bool
	switch req.Action {
	case "APPROVE":
		approve = true
	case "DECLINE":
		approve = false
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid action %q", req.Action))
		return
	}

	cfg, err := s.stores.config.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	res, err := s.gate.ResolvePending(r.Context(), id, approve, cfg)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, storage.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decision": res.Decision,
		"reasons":  res.Reasons,
		"trade":    res.Trade,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.stores.runs.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// Package main runs a single pipeline tick (or a lifecycle-only pass) and
// prints the resulting run record. Intended for cron jobs and manual
// inspection against the same stores the server uses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"trade-autopilot/internal/broker"
	"trade-autopilot/internal/config"
	"trade-autopilot/internal/evaluator"
	"trade-autopilot/internal/gate"
	"trade-autopilot/internal/lifecycle"
	"trade-autopilot/internal/marketdata"
	"trade-autopilot/internal/registry"
	"trade-autopilot/internal/storage"
	"trade-autopilot/internal/storage/memory"
	"trade-autopilot/internal/storage/migrations"
	pgstore "trade-autopilot/internal/storage/postgres"
	redisstore "trade-autopilot/internal/storage/redis"
	"trade-autopilot/internal/tick"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML bootstrap config")
	dryRun := flag.Bool("dry-run", false, "Compute decisions without mutating state or placing orders")
	lifecycleOnly := flag.Bool("lifecycle-only", false, "Run only the open-trade management pass")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	flag.Parse()

	logger := log.New(os.Stdout, "[tick] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.MarketDataURL == "" {
		logger.Fatal("market_data_url is required (MARKET_DATA_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, *dryRun, *lifecycleOnly, logger); err != nil {
		logger.Fatalf("Run failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, dryRun, lifecycleOnly bool, logger *log.Logger) error {
	var (
		trades    storage.TrackedTradeStore
		approvals storage.PendingApprovalStore
		runs      storage.RunRecordStore
		configDoc storage.ConfigStore
		dedup     storage.DedupIndex
	)

	if cfg.UseMemory {
		trades = memory.NewTrackedTradeStore()
		approvals = memory.NewPendingApprovalStore()
		runs = memory.NewRunRecordStore()
		configDoc = memory.NewConfigStore()
		dedup = memory.NewDedupIndex()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		trades = pgstore.NewTrackedTradeStore(pool)
		approvals = pgstore.NewPendingApprovalStore(pool)
		runs = pgstore.NewRunRecordStore(pool)
		configDoc = pgstore.NewConfigStore(pool)

		if cfg.RedisAddr != "" {
			client, err := redisstore.Dial(ctx, cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer client.Close()
			dedup = redisstore.NewDedupIndex(client)
		} else {
			dedup = memory.NewDedupIndex()
		}
	}

	var provider marketdata.Provider = marketdata.NewHTTPProvider(cfg.MarketDataURL, cfg.MarketDataAPIKey, 10*time.Second)
	provider = marketdata.NewChain([]marketdata.Provider{provider}, 10*time.Second, logger)
	prices := marketdata.NewCandleCloseSource(provider, cfg.CandleInterval, 0)

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
		Trades:    trades,
		Approvals: approvals,
		Dedup:     dedup,
		Tokens:    tokens,
		Orders:    orders,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	lc, err := lifecycle.New(lifecycle.Deps{
		Trades: trades,
		Prices: prices,
		Orders: orders,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	automation, err := configDoc.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no automation config found; start the server once to seed it")
	}
	if err != nil {
		return err
	}

	if lifecycleOnly {
		actions, err := lc.Run(ctx, automation, dryRun)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"dry_run": dryRun, "actions": actions})
	}

	orch, err := tick.New(tick.Options{
		Config:         configDoc,
		Runs:           runs,
		Candles:        provider,
		Evaluator:      evaluator.New(registry.MustNew()),
		Gate:           g,
		Lifecycle:      lc,
		CandleInterval: cfg.CandleInterval,
		Workers:        cfg.Workers,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	record, runErr := orch.Run(ctx, dryRun)
	if record != nil {
		if err := printJSON(record); err != nil {
			return err
		}
	}
	return runErr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

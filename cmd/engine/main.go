// Trading Engine — a venue-agnostic market-making/execution core driven by
// a deterministic single-writer event loop.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires every component, waits for SIGINT/SIGTERM
//	universe.go          — loads the instrument universe document indexed at startup
//	internal/index       — builds the dense (exchange, asset, instrument) key space
//	internal/state       — EngineState, the single writer's authoritative in-memory book
//	internal/engine      — the event-processing loop: market/account/command in, AuditTicks out
//	internal/marketdata  — reconnecting per-exchange feeds normalized to types.MarketEvent
//	internal/execution   — pluggable order-placement backend (mock matcher or live HTTP venue)
//	internal/risk         — synchronous pre-trade notional/kill-switch checks
//	internal/strategy    — pluggable algo/close-out capability bundles
//	internal/broker      — venue registry and fee schedules
//	internal/store       — SQLite-backed position/order persistence (survives restarts)
//	internal/audit       — AuditTick broadcast (WebSocket) and scheduled archive (SQLite + S3)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tradingcore/internal/audit"
	"tradingcore/internal/broker"
	"tradingcore/internal/config"
	"tradingcore/internal/engine"
	"tradingcore/internal/execution"
	"tradingcore/internal/fixedpoint"
	"tradingcore/internal/index"
	"tradingcore/internal/marketdata"
	"tradingcore/internal/risk"
	"tradingcore/internal/state"
	"tradingcore/internal/store"
	"tradingcore/internal/strategy"
	"tradingcore/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ENGINE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(newLogHandler(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogHandler(cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	exchanges, assets, instruments, err := loadUniverse(cfg.MarketData.UniversePath)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	blueprint, err := index.Build(exchanges, assets, instruments)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	brokers := broker.NewRegistry()
	if cfg.Broker.URL != "" {
		if err := brokers.LoadFromURL(ctx, cfg.Broker.URL); err != nil {
			return fmt.Errorf("load broker registry: %w", err)
		}
	} else if err := brokers.LoadFromFile(cfg.Broker.Path); err != nil {
		return fmt.Errorf("load broker registry: %w", err)
	}

	backend, err := buildBackend(ctx, cfg, brokers, logger)
	if err != nil {
		return fmt.Errorf("build execution backend: %w", err)
	}
	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("start execution backend: %w", err)
	}
	defer backend.Stop()

	limits, err := buildRiskLimits(cfg.Risk)
	if err != nil {
		return fmt.Errorf("build risk limits: %w", err)
	}
	riskManager := risk.NewManager(limits, logger, nil)

	engineState := state.New(blueprint, nil)
	if err := restoreBook(engineState, db); err != nil {
		return fmt.Errorf("restore book from store: %w", err)
	}

	flatten := strategy.FlattenOnSignal{Strategy: "engine"}
	eng := engine.New(engine.Config{
		State:             engineState,
		Backend:           backend,
		Algo:              strategy.Noop{},
		ClosePositions:    flatten,
		OnDisconnect:      flatten,
		OnTradingDisabled: flatten,
		Risk:              riskManager,
		Logger:            logger,
		AuditBuffer:       1024,
	})

	hub := audit.NewHub(logger)
	go hub.Run()

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build audit archive: %w", err)
	}
	defer archive.Stop()
	if err := archive.Schedule(ctx, cfg.Audit.FlushSchedule); err != nil {
		return fmt.Errorf("schedule audit flush: %w", err)
	}

	// Every tick is both broadcast live and archived; fan the engine's
	// single AuditTicks channel out to both consumers directly rather than
	// giving each its own Pump over one shared channel, which would split
	// ticks between them instead of duplicating them.
	go func() {
		for tick := range eng.AuditTicks() {
			hub.Broadcast(tick)
			archive.Enqueue(tick)
		}
	}()

	var dashboard *http.Server
	if cfg.Audit.Dashboard.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		dashboard = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Audit.Dashboard.Port), Handler: mux}
		go func() {
			if err := dashboard.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("audit dashboard started", "port", cfg.Audit.Dashboard.Port)
	}

	streams, err := buildStreams(cfg, blueprint, logger)
	if err != nil {
		return fmt.Errorf("build market-data streams: %w", err)
	}
	for _, s := range streams {
		s := s
		go func() {
			if err := s.Run(ctx); err != nil {
				logger.Error("market-data stream exited", "error", err)
			}
		}()
		go pumpMarketEvents(s, eng)
		go pumpConnectivity(s, eng)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — using the mock execution backend")
	}
	logger.Info("trading engine started",
		"instruments", len(instruments),
		"exchanges", len(exchanges),
		"dry_run", cfg.DryRun,
	)

	eng.SubmitCommand(types.Command{Kind: types.CommandSetTrading, TradingState: types.TradingEnabled})

	runErr := eng.Run(ctx)

	logger.Info("shutting down")
	if dashboard != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dashboard.Shutdown(shutdownCtx)
	}
	if err := archive.Flush(context.Background()); err != nil {
		logger.Error("final audit flush failed", "error", err)
	}
	return runErr
}

// buildBackend selects the mock matcher (dry-run / execution.mode=="mock")
// or a live HTTPBackend, wiring a single default cost formula resolved from
// the broker registry into the mock — a live backend reports its own fee
// per trade, so it gets no such hook.
func buildBackend(ctx context.Context, cfg *config.Config, brokers *broker.Registry, logger *slog.Logger) (execution.Backend, error) {
	if cfg.DryRun || cfg.Execution.Mode == "mock" {
		backend := execution.NewMockBackend(func() int64 { return time.Now().UnixMilli() })
		if cfg.Broker.DefaultId != "" {
			if meta, ok := brokers.Get(broker.BrokerId(cfg.Broker.DefaultId)); ok {
				backend.SetCostFormula(meta.CostModel.Default)
			}
		}
		return backend, nil
	}

	return execution.NewHTTPBackend(execution.HTTPConfig{
		BaseURL:             cfg.Execution.BaseURL,
		APIKey:              cfg.Execution.APIKey,
		APISecret:           cfg.Execution.APISecret,
		OrderPath:           cfg.Execution.OrderPath,
		CancelPath:          cfg.Execution.CancelPath,
		BalancesPath:        cfg.Execution.BalancesPath,
		OpenOrderPath:       cfg.Execution.OpenOrderPath,
		TradesPath:          cfg.Execution.TradesPath,
		OrderBucketCapacity: cfg.Execution.OrderBucketCapacity,
		OrderBucketRate:     cfg.Execution.OrderBucketRate,
	}, logger), nil
}

func buildRiskLimits(cfg config.RiskConfig) (risk.Limits, error) {
	perInstrument, err := fixedpoint.Parse(cfg.MaxNotionalPerInstrument)
	if err != nil {
		return risk.Limits{}, fmt.Errorf("risk.max_notional_per_instrument: %w", err)
	}
	global, err := fixedpoint.Parse(cfg.MaxNotionalGlobal)
	if err != nil {
		return risk.Limits{}, fmt.Errorf("risk.max_notional_global: %w", err)
	}
	dailyLoss := fixedpoint.Zero
	if cfg.MaxDailyLoss != "" {
		dailyLoss, err = fixedpoint.Parse(cfg.MaxDailyLoss)
		if err != nil {
			return risk.Limits{}, fmt.Errorf("risk.max_daily_loss: %w", err)
		}
	}
	return risk.Limits{
		MaxNotionalPerInstrument: perInstrument,
		MaxNotionalGlobal:        global,
		MaxDailyLoss:             dailyLoss,
		KillSwitchDropPct:        cfg.KillSwitchDropPct,
		KillSwitchWindowSec:      cfg.KillSwitchWindowSec,
		CooldownAfterKill:        cfg.CooldownAfterKill,
	}, nil
}

func buildArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*audit.Archive, error) {
	archive, err := audit.NewArchive(cfg.Audit.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Audit.S3.Enabled {
		return archive, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Audit.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client)
	return archive.WithS3(uploader, cfg.Audit.S3.Bucket), nil
}

func buildStreams(cfg *config.Config, blueprint *index.IndexedInstruments, logger *slog.Logger) ([]*marketdata.Stream, error) {
	out := make([]*marketdata.Stream, 0, len(cfg.MarketData.Feeds))
	for _, feed := range cfg.MarketData.Feeds {
		exchange := types.ExchangeIndex(feed.Exchange)
		var subs []marketdata.Subscription
		for _, inst := range blueprint.Instruments() {
			if inst.Exchange != exchange {
				continue
			}
			subs = append(subs,
				marketdata.Subscription{Exchange: exchange, Instrument: inst.Index, Kind: marketdata.SubscriptionBook},
				marketdata.Subscription{Exchange: exchange, Instrument: inst.Index, Kind: marketdata.SubscriptionTrade},
			)
		}
		if len(subs) == 0 {
			continue
		}
		conn := marketdata.NewSimConnector(feed.URL)
		stream := marketdata.NewStream(exchange, conn, marketdata.SimMapper{}, marketdata.SimValidator{}, marketdata.SimTransformer(), subs, logger)
		out = append(out, stream)
	}
	return out, nil
}

func pumpMarketEvents(s *marketdata.Stream, eng *engine.Engine) {
	for ev := range s.Events() {
		ev.ReceivedAtEngineTime = time.Now().UnixMilli()
		eng.SubmitMarketEvent(ev)
	}
}

func pumpConnectivity(s *marketdata.Stream, eng *engine.Engine) {
	for report := range s.Connectivity() {
		eng.SubmitConnectivity(report.Exchange, report.Health, time.Now().UnixMilli())
	}
}

// restoreBook replays every persisted position and open order back into a
// freshly built EngineState, so a restarted engine resumes with the same
// book it had before shutdown instead of starting flat.
func restoreBook(s *state.EngineState, db *store.Store) error {
	positions, err := db.LoadPositions()
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	for _, pos := range positions {
		if is := s.Instrument(pos.Instrument); is != nil {
			is.Position = pos
			is.HasPosition = true
		}
	}

	orders, err := db.LoadOpenOrders()
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	for _, o := range orders {
		if err := s.PutOrder(o); err != nil {
			return fmt.Errorf("restore order %+v: %w", o.Key, err)
		}
	}
	return nil
}

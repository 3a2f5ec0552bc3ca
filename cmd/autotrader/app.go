package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"autotrader/internal/broker"
	"autotrader/internal/config"
	"autotrader/internal/cooldown"
	"autotrader/internal/domain"
	"autotrader/internal/engine"
	"autotrader/internal/events"
	"autotrader/internal/inbox"
	"autotrader/internal/metrics"
	"autotrader/internal/orders"
	"autotrader/internal/queue"
	"autotrader/internal/scheduler"
	"autotrader/internal/signals"
	"autotrader/internal/store"
	"autotrader/internal/strategy"
	"autotrader/internal/strategy/builtins"
	"autotrader/internal/tracker"
	"autotrader/internal/util"
)

const scanWorkers = 4

// app holds every wired component of a running trader.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	inbox    *inbox.Inbox
	signals  *signals.Snapshots
	bus      *events.Bus
	journal  *store.SQLiteStore
	registry *prometheus.Registry
}

// newApp wires the engine and its collaborators from cfg.
func newApp(cfg *config.Config, dryRun bool) (*app, error) {
	log := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	for _, dir := range []string{cfg.Storage.DataDir, cfg.InboxDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath, cfg.Storage.KeepCheckpoints, log)
	if err != nil {
		return nil, err
	}

	var checkpoints engine.CheckpointStore = journal
	if cfg.Storage.Checkpoint == "file" {
		checkpoints = store.NewFileCheckpointStore(cfg.Storage.CheckpointPath)
	}

	b, err := newBroker(cfg)
	if err != nil {
		journal.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	calendar := util.NewTradingCalendar(domain.Market(strings.ToLower(cfg.Calendar.Market)))
	if err := calendar.AddHolidays(cfg.Calendar.Holidays...); err != nil {
		journal.Close()
		return nil, err
	}

	strategies := strategy.NewRegistry()
	builtins.RegisterAll(strategies, cfg.Strategies, strategy.RiskSizer{
		RiskPerTradePct: cfg.Engine.RiskPerTradePct,
		MaxPositionPct:  cfg.Engine.MaxPositionPct,
	})

	bus := events.NewBus(events.LogSink(log), journal)

	// Scan results stay fresh for one scan interval and are reused by the
	// engine's exit and entry evaluation.
	provider := signals.NewSnapshots(signals.NewProvider(
		signals.NewAlpacaBars(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed),
		signals.Config{},
		log,
	), cfg.Scheduler.Scan.Interval)

	om := orders.NewManager(b, orders.Options{
		DryRun:        dryRun || cfg.Engine.DryRun,
		CancelTimeout: cfg.Orders.CancelTimeout,
		PollInterval:  cfg.Orders.CancelPollInterval,
		TimeInForce:   domain.TimeInForce(strings.ToLower(cfg.Orders.TimeInForce)),
	}, log)

	eng, err := engine.NewEngine(engine.Config{
		MaxPositions:       cfg.Engine.MaxPositions,
		DailyLossLimitPct:  cfg.Engine.DailyLossLimitPct,
		MaxPositionPct:     cfg.Engine.MaxPositionPct,
		MaxEntriesPerCycle: cfg.Engine.MaxEntriesPerCycle,
		SignalCacheTTL:     cfg.Engine.SignalCacheTTL,
		PendingOrderTTL:    cfg.Engine.PendingOrderTTL,
		MaxExitAttempts:    cfg.Engine.MaxExitAttempts,
		DefaultStrategy:    cfg.Engine.DefaultStrategy,
		DryRun:             dryRun || cfg.Engine.DryRun,
	}, engine.Deps{
		Broker:      b,
		Orders:      om,
		Tracker:     tracker.New(b, log),
		Queue:       queue.New(cfg.Queue.MaxSize, cfg.Queue.DefaultTTL),
		Cooldowns:   cooldown.NewManager(cfg.Cooldown.DefaultDuration),
		Strategies:  strategies,
		Signals:     provider,
		Risk:        engine.NewRiskManager(cfg.Engine.MaxPositions, cfg.Engine.MaxPositionPct, cfg.Engine.DailyLossLimitPct),
		Events:      bus,
		Checkpoints: checkpoints,
		Archive:     store.NewParquetStore(cfg.Storage.DataDir),
		Calendar:    calendar,
		Metrics:     metrics.New(registry),
		Logger:      log,
	})
	if err != nil {
		journal.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		engine:   eng,
		sched:    scheduler.New(log),
		signals:  provider,
		bus:      bus,
		journal:  journal,
		registry: registry,
	}
	a.inbox = inbox.New(cfg.InboxDir, eng.Enqueue, log)
	if err := a.registerStages(); err != nil {
		journal.Close()
		return nil, err
	}
	return a, nil
}

func newBroker(cfg *config.Config) (broker.Broker, error) {
	if simulate {
		return broker.NewSimulatorBroker(), nil
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return nil, errors.New("alpaca credentials missing: set APCA_API_KEY_ID and APCA_API_SECRET_KEY, or pass --simulate")
	}
	return broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL), nil
}

// registerStages installs the pipeline: scan refreshes watchlist signals,
// analyze ingests recommendation files, execute runs one engine cycle.
func (a *app) registerStages() error {
	sc := a.cfg.Scheduler
	if err := a.sched.Register(scheduler.StageScan,
		scheduler.StageConfig{Interval: sc.Scan.Interval, Enabled: sc.Scan.Enabled && len(a.cfg.Watchlist) > 0},
		scheduler.Go(a.scanWatchlist)); err != nil {
		return err
	}
	if err := a.sched.Register(scheduler.StageAnalyze,
		scheduler.StageConfig{Interval: sc.Analyze.Interval, Enabled: sc.Analyze.Enabled},
		scheduler.Sync(func(ctx context.Context) error {
			_, err := a.inbox.Ingest(ctx)
			return err
		})); err != nil {
		return err
	}
	return a.sched.Register(scheduler.StageExecute,
		scheduler.StageConfig{Interval: sc.Execute.Interval, Enabled: sc.Execute.Enabled},
		scheduler.Sync(func(ctx context.Context) error {
			_, err := a.engine.RunCycle(ctx)
			if errors.Is(err, engine.ErrStopped) {
				return nil
			}
			return err
		}))
}

// scanWatchlist refreshes the technical snapshot for each watchlist ticker,
// which the execute stage then reads. Failures for individual tickers are
// logged and skipped.
func (a *app) scanWatchlist(ctx context.Context) error {
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)

	for _, ticker := range a.cfg.Watchlist {
		g.Go(func() error {
			sig, err := a.signals.Refresh(gctx, ticker)
			if err != nil {
				a.log.Warn("watchlist scan", "ticker", ticker, "error", err)
				failed.Add(1)
				return nil
			}
			a.log.Info("watchlist signal",
				"ticker", sig.Symbol,
				"price", sig.Price,
				"atr", sig.ATR,
				"rvol", sig.RVOL,
				"momentum", sig.Momentum,
				"score", sig.Score,
				"tags", sig.SignalTags,
			)
			return nil
		})
	}
	_ = g.Wait()

	if n := int(failed.Load()); n > 0 && n == len(a.cfg.Watchlist) {
		return fmt.Errorf("watchlist scan: all %d tickers failed", n)
	}
	return nil
}

// Close releases the journal database.
func (a *app) Close() error {
	return a.journal.Close()
}

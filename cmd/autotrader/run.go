package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/api"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading pipeline until interrupted",
	Long: `Run restores the latest checkpoint, starts the ops API, and drives the
scan, analyze and execute stages until SIGINT or SIGTERM. On shutdown the
engine stops, a final checkpoint is written and the API is drained.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd.Context(), false)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full pipeline in dry-run mode",
	Long: `Analyze runs exactly the same pipeline as run, but no order reaches the
broker. Exits and entries are still evaluated, logged and emitted as events
marked dry_run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd.Context(), true)
	},
}

var runOnce bool

func init() {
	for _, c := range []*cobra.Command{runCmd, analyzeCmd} {
		c.Flags().BoolVar(&runOnce, "once", false, "run a single scheduler cycle and exit")
	}
}

func runPipeline(parent context.Context, dryRun bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, dryRun)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	restored, err := a.engine.LoadCheckpoint(parent)
	if err != nil {
		return err
	}
	log.Info("autotrader starting",
		"dry_run", a.engine.DryRun(),
		"checkpoint_restored", restored,
		"strategies", a.engine.Status().Strategies,
	)

	if runOnce {
		return a.sched.RunCycle(parent)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiCtx, stopAPI := context.WithCancel(parent)
	defer stopAPI()
	srv := api.NewServer(a.engine, api.Options{
		HTTPAddr: cfg.Server.Addr(),
		GRPCAddr: cfg.Server.GRPCAddr(),
		Gatherer: a.registry,
		Bus:      a.bus,
		Journal:  a.journal,
		Stages:   a.sched.Status,
		Logger:   log,
	})
	apiDone := make(chan error, 1)
	go func() { apiDone <- srv.ListenAndServe(apiCtx) }()

	schedErr := a.sched.Run(ctx, cfg.Scheduler.Tick)

	log.Info("shutting down")
	a.engine.Stop()

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.engine.SaveCheckpoint(saveCtx); err != nil {
		log.Error("final checkpoint", "error", err)
	}

	stopAPI()
	if err := <-apiDone; err != nil {
		log.Error("api server", "error", err)
	}
	if schedErr != nil {
		return fmt.Errorf("scheduler: %w", schedErr)
	}
	return nil
}

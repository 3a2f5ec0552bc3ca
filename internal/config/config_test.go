package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "autotrader-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL",
		"ALPACA_DATA_URL", "LOG_LEVEL", "AUTOTRADER_DRY_RUN", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeTemp(t, `
storage:
  data_dir: "/tmp/autotrader/data"
  sqlite_path: "/tmp/autotrader/autotrader.db"
  checkpoint: file
server:
  host: "0.0.0.0"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
logging:
  level: "debug"
engine:
  max_positions: 8
  daily_loss_limit_pct: 0.03
  pending_order_ttl: 20m
  default_strategy: breakout
  dry_run: true
queue:
  default_ttl: 2h
scheduler:
  execute:
    interval: 15s
    enabled: false
strategies:
  breakout:
    range_period: 30
watchlist: [AAPL, MSFT]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/autotrader/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/autotrader/data")
	}
	if cfg.Storage.Checkpoint != "file" {
		t.Errorf("Storage.Checkpoint = %q, want file", cfg.Storage.Checkpoint)
	}
	if cfg.Storage.KeepCheckpoints != 20 {
		t.Errorf("Storage.KeepCheckpoints = %d, want default 20", cfg.Storage.KeepCheckpoints)
	}

	// -- Server --
	if got := cfg.Server.Addr(); got != "0.0.0.0:8081" {
		t.Errorf("Server.Addr() = %q", got)
	}
	if got := cfg.Server.GRPCAddr(); got != "0.0.0.0:9091" {
		t.Errorf("Server.GRPCAddr() = %q", got)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.APISecret != "test-secret" {
		t.Errorf("Alpaca credentials = %q/%q", cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want default iex", cfg.Alpaca.Feed)
	}

	// -- Engine --
	if cfg.Engine.MaxPositions != 8 {
		t.Errorf("Engine.MaxPositions = %d, want 8", cfg.Engine.MaxPositions)
	}
	if cfg.Engine.DailyLossLimitPct != 0.03 {
		t.Errorf("Engine.DailyLossLimitPct = %f, want 0.03", cfg.Engine.DailyLossLimitPct)
	}
	if cfg.Engine.MaxPositionPct != 0.10 {
		t.Errorf("Engine.MaxPositionPct = %f, want default 0.10", cfg.Engine.MaxPositionPct)
	}
	if cfg.Engine.PendingOrderTTL != 20*time.Minute {
		t.Errorf("Engine.PendingOrderTTL = %s, want 20m", cfg.Engine.PendingOrderTTL)
	}
	if cfg.Engine.DefaultStrategy != "breakout" || !cfg.Engine.DryRun {
		t.Errorf("Engine = %+v", cfg.Engine)
	}

	// -- Queue / scheduler --
	if cfg.Queue.DefaultTTL != 2*time.Hour || cfg.Queue.MaxSize != 50 {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Scheduler.Execute.Enabled || cfg.Scheduler.Execute.Interval != 15*time.Second {
		t.Errorf("Scheduler.Execute = %+v", cfg.Scheduler.Execute)
	}
	if !cfg.Scheduler.Scan.Enabled {
		t.Error("Scheduler.Scan should keep its default")
	}

	// -- Strategies --
	if cfg.Strategies.Breakout.RangePeriod != 30 {
		t.Errorf("Breakout.RangePeriod = %d, want 30", cfg.Strategies.Breakout.RangePeriod)
	}
	if cfg.Strategies.Breakout.VolumeMultiple != 1.5 {
		t.Errorf("Breakout.VolumeMultiple = %f, want default 1.5", cfg.Strategies.Breakout.VolumeMultiple)
	}
	if cfg.Strategies.Momentum.FuzzyThreshold != 0.7 {
		t.Errorf("Momentum.FuzzyThreshold = %f, want default 0.7", cfg.Strategies.Momentum.FuzzyThreshold)
	}

	if len(cfg.Watchlist) != 2 || cfg.Watchlist[1] != "MSFT" {
		t.Errorf("Watchlist = %v", cfg.Watchlist)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeTemp(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("AUTOTRADER_DRY_RUN", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if !cfg.Engine.DryRun {
		t.Error("Engine.DryRun = false, want true (env override)")
	}

	// APCA_* wins over ALPACA_*.
	t.Setenv("APCA_API_KEY_ID", "apca-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "apca-key" {
		t.Errorf("Alpaca.APIKey = %q, want apca-key", cfg.Alpaca.APIKey)
	}

	t.Setenv("AUTOTRADER_DRY_RUN", "maybe")
	if _, err := Load(path); err == nil {
		t.Error("Load() with bad AUTOTRADER_DRY_RUN should fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/autotrader.yaml"); !os.IsNotExist(err) {
		t.Errorf("Load(missing) err = %v, want not-exist", err)
	}
}

func TestFromEnvUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() returned error: %v", err)
	}
	if cfg.Engine.MaxPositions != 5 || cfg.Storage.Checkpoint != "sqlite" {
		t.Errorf("unexpected defaults: %+v", cfg.Engine)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}

	cfg.Engine.MaxPositions = 0
	cfg.Queue.MaxSize = -1
	cfg.Storage.Checkpoint = "redis"
	cfg.Engine.DailyLossLimitPct = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() accepted invalid config")
	}
	for _, want := range []string{"engine.max_positions", "queue.max_size", "storage.checkpoint", "fractions"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %q", err, want)
		}
	}
}

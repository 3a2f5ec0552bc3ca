package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autotrader/internal/strategy/builtins"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the autotrader service.
type Config struct {
	Storage    Storage         `yaml:"storage"`
	Server     Server          `yaml:"server"`
	Alpaca     Alpaca          `yaml:"alpaca"`
	Logging    Logging         `yaml:"logging"`
	Calendar   Calendar        `yaml:"calendar"`
	Engine     Engine          `yaml:"engine"`
	Queue      Queue           `yaml:"queue"`
	Cooldown   Cooldown        `yaml:"cooldown"`
	Orders     Orders          `yaml:"orders"`
	Scheduler  Scheduler       `yaml:"scheduler"`
	Strategies builtins.Params `yaml:"strategies"`
	Watchlist  []string        `yaml:"watchlist"`
	InboxDir   string          `yaml:"inbox_dir"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	// Checkpoint is "sqlite" or "file".
	Checkpoint      string `yaml:"checkpoint"`
	CheckpointPath  string `yaml:"checkpoint_path"`
	KeepCheckpoints int    `yaml:"keep_checkpoints"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	// Feed is the market-data feed ("iex" or "sip").
	Feed string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Calendar selects the exchange hours used when the broker clock is
// unavailable.
type Calendar struct {
	Market   string   `yaml:"market"`
	Holidays []string `yaml:"holidays"`
}

// Engine defines risk and execution parameters.
type Engine struct {
	MaxPositions       int           `yaml:"max_positions"`
	DailyLossLimitPct  float64       `yaml:"daily_loss_limit_pct"`
	MaxPositionPct     float64       `yaml:"max_position_pct"`
	RiskPerTradePct    float64       `yaml:"risk_per_trade_pct"`
	MaxEntriesPerCycle int           `yaml:"max_entries_per_cycle"`
	SignalCacheTTL     time.Duration `yaml:"signal_cache_ttl"`
	PendingOrderTTL    time.Duration `yaml:"pending_order_ttl"`
	MaxExitAttempts    int           `yaml:"max_exit_attempts"`
	DefaultStrategy    string        `yaml:"default_strategy"`
	DryRun             bool          `yaml:"dry_run"`
}

// Queue sizes the signal queue.
type Queue struct {
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Cooldown configures the re-entry window after an exit.
type Cooldown struct {
	DefaultDuration time.Duration `yaml:"default_duration"`
}

// Orders configures order submission and cancellation.
type Orders struct {
	CancelTimeout      time.Duration `yaml:"cancel_timeout"`
	CancelPollInterval time.Duration `yaml:"cancel_poll_interval"`
	TimeInForce        string        `yaml:"time_in_force"`
}

// Stage is one pipeline stage's schedule.
type Stage struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// Scheduler configures the pipeline tick and its stages.
type Scheduler struct {
	Tick    time.Duration `yaml:"tick"`
	Scan    Stage         `yaml:"scan"`
	Analyze Stage         `yaml:"analyze"`
	Execute Stage         `yaml:"execute"`
}

// Default returns the configuration used for every field the YAML file
// leaves unset.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:         "data",
			SQLitePath:      "data/autotrader.db",
			Checkpoint:      "sqlite",
			CheckpointPath:  "data/checkpoint.json",
			KeepCheckpoints: 20,
		},
		Server:  Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090},
		Alpaca:  Alpaca{BaseURL: "https://paper-api.alpaca.markets", DataURL: "https://data.alpaca.markets", Feed: "iex"},
		Logging: Logging{Level: "info", Format: "json"},
		Calendar: Calendar{
			Market: "us",
		},
		Engine: Engine{
			MaxPositions:       5,
			DailyLossLimitPct:  0.02,
			MaxPositionPct:     0.10,
			RiskPerTradePct:    0.01,
			MaxEntriesPerCycle: 3,
			SignalCacheTTL:     5 * time.Minute,
			PendingOrderTTL:    15 * time.Minute,
			MaxExitAttempts:    3,
			DefaultStrategy:    "momentum",
		},
		Queue:    Queue{MaxSize: 50, DefaultTTL: time.Hour},
		Cooldown: Cooldown{DefaultDuration: 30 * time.Minute},
		Orders: Orders{
			CancelTimeout:      10 * time.Second,
			CancelPollInterval: 500 * time.Millisecond,
			TimeInForce:        "day",
		},
		Scheduler: Scheduler{
			Tick:    5 * time.Second,
			Scan:    Stage{Interval: 5 * time.Minute, Enabled: true},
			Analyze: Stage{Interval: time.Minute, Enabled: true},
			Execute: Stage{Interval: 30 * time.Second, Enabled: true},
		},
		Strategies: builtins.DefaultParams(),
		InboxDir:   "data/inbox",
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv returns Default() with environment overrides applied, for running
// without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("AUTOTRADER_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTOTRADER_DRY_RUN: %w", err)
		}
		cfg.Engine.DryRun = b
	}

	// Standard Alpaca env vars (highest priority; canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	positive("engine.max_positions", c.Engine.MaxPositions > 0)
	positive("engine.daily_loss_limit_pct", c.Engine.DailyLossLimitPct > 0)
	positive("engine.max_position_pct", c.Engine.MaxPositionPct > 0)
	positive("engine.risk_per_trade_pct", c.Engine.RiskPerTradePct > 0)
	positive("engine.max_entries_per_cycle", c.Engine.MaxEntriesPerCycle > 0)
	positive("engine.max_exit_attempts", c.Engine.MaxExitAttempts > 0)
	positive("queue.max_size", c.Queue.MaxSize > 0)
	positive("queue.default_ttl", c.Queue.DefaultTTL > 0)
	positive("cooldown.default_duration", c.Cooldown.DefaultDuration > 0)
	positive("orders.cancel_timeout", c.Orders.CancelTimeout > 0)
	positive("orders.cancel_poll_interval", c.Orders.CancelPollInterval > 0)
	positive("scheduler.tick", c.Scheduler.Tick > 0)

	if c.Engine.DailyLossLimitPct >= 1 || c.Engine.MaxPositionPct > 1 {
		errs = append(errs, errors.New("engine percentages are fractions and must not exceed 1"))
	}
	if c.Engine.DefaultStrategy == "" {
		errs = append(errs, errors.New("engine.default_strategy is required"))
	}
	switch c.Storage.Checkpoint {
	case "sqlite", "file":
	default:
		errs = append(errs, fmt.Errorf("storage.checkpoint must be sqlite or file, got %q", c.Storage.Checkpoint))
	}
	switch strings.ToLower(c.Orders.TimeInForce) {
	case "day", "gtc":
	default:
		errs = append(errs, fmt.Errorf("orders.time_in_force must be day or gtc, got %q", c.Orders.TimeInForce))
	}
	switch strings.ToLower(c.Calendar.Market) {
	case "us", "cn":
	default:
		errs = append(errs, fmt.Errorf("calendar.market must be us or cn, got %q", c.Calendar.Market))
	}
	return errors.Join(errs...)
}

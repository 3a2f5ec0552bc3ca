package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"autotrader/internal/config"
)

const defaultConfigPath = "config/autotrader.yaml"

var (
	configPath string
	simulate   bool
)

var rootCmd = &cobra.Command{
	Use:   "autotrader",
	Short: "Unattended execution engine for scored trade recommendations",
	Long: `autotrader turns queued trade recommendations into broker orders.

Each cycle it reconciles positions against the broker, evaluates exits,
admits new entries under position and daily-loss limits, and submits
bracket orders with a mandatory stop-loss.

Configuration is read from --config (default config/autotrader.yaml, or
$AUTOTRADER_CONFIG), overridden by environment variables. A .env file in
the working directory is loaded first.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use the in-memory simulator broker instead of Alpaca")

	rootCmd.AddCommand(runCmd, analyzeCmd, checkpointCmd, statusCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config or $AUTOTRADER_CONFIG.
// A missing default file falls back to defaults plus environment.
func loadConfig() (*config.Config, error) {
	path, explicit := configPath, configPath != ""
	if !explicit {
		if p := os.Getenv("AUTOTRADER_CONFIG"); p != "" {
			path, explicit = p, true
		} else {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

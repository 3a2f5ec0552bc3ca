package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/engine"
	"autotrader/pkg/autotrader"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running trader",
	Long: `Status queries the ops API of a running trader and prints its open
positions, queued signals, cooldowns, pending orders and last cycle.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusAddr string
	statusJSON bool
)

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "ops API base URL (default from server config)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status JSON")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = "http://" + cfg.Server.Addr()
	}

	st, err := autotrader.NewClient(addr).Status(cmd.Context())
	if err != nil {
		return err
	}
	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(out io.Writer, st *engine.Status) {
	mode := "live"
	if st.DryRun {
		mode = "dry-run"
	}
	state := "running"
	if st.Stopped {
		state = "stopped"
	}
	fmt.Fprintf(out, "%s  mode=%s  state=%s  strategies=%v\n", st.Time.Format(time.RFC3339), mode, state, st.Strategies)
	if st.CircuitBreakerOpen {
		fmt.Fprintln(out, "circuit breaker OPEN: new entries blocked")
	}
	if len(st.StuckExits) > 0 {
		fmt.Fprintf(out, "exits failing repeatedly: %v\n", st.StuckExits)
	}
	if c := st.LastCycle; c != nil {
		fmt.Fprintf(out, "last cycle #%d at %s: %s, exits=%d entries=%d rejected=%d requeued=%d errors=%d\n",
			c.Cycle, c.StartedAt.Format(time.RFC3339), c.MarketStatus, c.Exits, c.Entries, c.Rejected, c.Requeued, len(c.Errors))
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nPOSITIONS (%d)\n", len(st.Positions))
	fmt.Fprintln(w, "TICKER\tSIDE\tQTY\tENTRY\tPRICE\tPNL\tSTOP\tTARGET\tSTRATEGY")
	for _, p := range st.Positions {
		fmt.Fprintf(w, "%s\t%s\t%g\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			p.Ticker, p.Side, p.Quantity, p.AvgEntryPrice, p.CurrentPrice, p.UnrealizedPnL, p.StopLoss, p.Target, p.StrategyName)
	}
	w.Flush()

	fmt.Fprintf(w, "\nQUEUE (%d)\n", len(st.Queue))
	fmt.Fprintln(w, "TICKER\tACTION\tPRIORITY\tSOURCE\tEXPIRES")
	for _, s := range st.Queue {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\n", s.Ticker, s.Action, s.Priority, s.Source, s.ExpiresAt.Format(time.Kitchen))
	}
	w.Flush()

	fmt.Fprintf(w, "\nCOOLDOWNS (%d)\n", len(st.Cooldowns))
	for _, c := range st.Cooldowns {
		fmt.Fprintf(w, "%s\t%s\tuntil %s\n", c.Ticker, c.Reason, c.ExpiresAt.Format(time.Kitchen))
	}
	w.Flush()

	fmt.Fprintf(w, "\nPENDING ORDERS (%d)\n", len(st.PendingOrders))
	for _, o := range st.PendingOrders {
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\tsince %s\n", o.Ticker, o.Side, o.Quantity, o.StrategyName, o.SubmittedAt.Format(time.Kitchen))
	}
	w.Flush()
}

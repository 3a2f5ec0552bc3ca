package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/engine"
	"autotrader/internal/store"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect persisted engine checkpoints",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the latest checkpoint",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointShow,
}

var checkpointJSON bool

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointShowCmd.Flags().BoolVar(&checkpointJSON, "json", false, "print the raw checkpoint JSON")
}

func runCheckpointShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var cps engine.CheckpointStore
	if cfg.Storage.Checkpoint == "file" {
		cps = store.NewFileCheckpointStore(cfg.Storage.CheckpointPath)
	} else {
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath, cfg.Storage.KeepCheckpoints, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		cps = s
	}

	data, err := cps.LoadCheckpoint(cmd.Context())
	if errors.Is(err, store.ErrNoCheckpoint) {
		fmt.Fprintln(cmd.OutOrStdout(), "no checkpoint stored")
		return nil
	}
	if err != nil {
		return err
	}
	cp, err := engine.DecodeCheckpoint(data)
	if err != nil {
		return err
	}

	if checkpointJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	}
	printCheckpoint(cmd.OutOrStdout(), cp)
	return nil
}

func printCheckpoint(out io.Writer, cp *engine.Checkpoint) {
	fmt.Fprintf(out, "checkpoint v%d at %s\n\n", cp.Version, cp.Timestamp.Format(time.RFC3339))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "POSITIONS (%d)\n", len(cp.Positions))
	fmt.Fprintln(w, "TICKER\tSIDE\tQTY\tENTRY\tSTOP\tTARGET\tSTRATEGY\tBRACKET")
	for _, p := range cp.Positions {
		fmt.Fprintf(w, "%s\t%s\t%g\t%.2f\t%.2f\t%.2f\t%s\t%v\n",
			p.Ticker, p.Side, p.Quantity, p.AvgEntryPrice, p.StopLoss, p.Target, p.StrategyName, p.HasBracketOrder)
	}
	w.Flush()

	fmt.Fprintf(w, "\nQUEUE (%d)\n", len(cp.SignalQueue))
	fmt.Fprintln(w, "TICKER\tACTION\tPRIORITY\tSTRATEGY\tEXPIRES")
	for _, s := range cp.SignalQueue {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\n",
			s.Ticker, s.Action, s.Priority, s.StrategyName, s.ExpiresAt.Format(time.RFC3339))
	}
	w.Flush()

	fmt.Fprintf(w, "\nCOOLDOWNS (%d)\n", len(cp.Cooldowns))
	fmt.Fprintln(w, "TICKER\tREASON\tSTRATEGY\tEXPIRES")
	for _, c := range cp.Cooldowns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Ticker, c.Reason, c.StrategyName, c.ExpiresAt.Format(time.RFC3339))
	}
	w.Flush()

	fmt.Fprintf(w, "\nPENDING ORDERS (%d)\n", len(cp.Orders))
	fmt.Fprintln(w, "TICKER\tSIDE\tQTY\tSTRATEGY\tSUBMITTED")
	for _, o := range cp.Orders {
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%s\n", o.Ticker, o.Side, o.Quantity, o.StrategyName, o.SubmittedAt.Format(time.RFC3339))
	}
	w.Flush()

	if len(cp.StrategyState) > 0 {
		fmt.Fprintf(out, "\nstrategy state: %d strategies\n", len(cp.StrategyState))
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Inspect or reset the saved cost ledger",
	Long: `Reads and writes costs.json in the data directory. A running server
keeps its own ledger in memory and its next save overwrites the file, so
reset a live server with POST /costs/reset instead.`,
}

var costsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cumulative cost per source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.CostsPath() == "" {
			return fmt.Errorf("cost ledger is not persisted (costs.persist is false)")
		}
		// Never written back: the ledger only saves after a change.
		ledger := openLedger(cfg)
		defer ledger.Close()

		snap := ledger.Snapshot()
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, snap)
		}

		fmt.Fprintln(out, titleStyle.Render("Cost ledger"))
		for _, name := range ledger.Sources() {
			c := snap.Sources[name]
			fmt.Fprintln(out, row(name, fmt.Sprintf("$%.6f  (%d calls, %d tokens)", c.CostUSD, c.Calls, c.Tokens)))
		}
		fmt.Fprintln(out, row("total", fmt.Sprintf("$%.6f", snap.TotalCostUSD)))
		if snap.LastUpdated.IsZero() {
			fmt.Fprintln(out, mutedStyle.Render("never updated"))
		} else {
			fmt.Fprintln(out, mutedStyle.Render("last updated "+snap.LastUpdated.Format("2006-01-02 15:04:05 MST")))
		}
		return nil
	},
}

var costsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero every source in the saved cost ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.CostsPath() == "" {
			return fmt.Errorf("cost ledger is not persisted (costs.persist is false)")
		}
		ledger := openLedger(cfg)
		ledger.Reset()
		if err := ledger.Close(); err != nil {
			return fmt.Errorf("failed to save cost ledger: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cost ledger reset")
		return nil
	},
}

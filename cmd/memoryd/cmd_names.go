package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"memoryd/internal/registry"
)

var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Inspect or edit the display-name registry",
	Long: `Reads and writes names.json in the data directory. A running server
keeps its own copy in memory; prefer POST /names while it is up.`,
}

var namesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered display names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := registry.Open(cfg.Data.Dir).Snapshot()
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, names)
		}

		if len(names) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("No names registered"))
			return nil
		}
		ids := make([]string, 0, len(names))
		for id := range names {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(out, titleStyle.Render("Display names"))
		for _, id := range ids {
			fmt.Fprintln(out, row(id, names[id]))
		}
		return nil
	},
}

var namesSetCmd = &cobra.Command{
	Use:   "set <user_id> <name>",
	Short: "Register a display name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" || args[1] == "" {
			return fmt.Errorf("user_id and name must not be empty")
		}
		registry.Open(cfg.Data.Dir).Register(args[0], args[1])
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
		return nil
	},
}

// Command memoryd runs the memory server and offers offline inspection of
// its durable state (names, costs, stored memories).
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"memoryd/internal/config"
	"memoryd/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	configPath string
	jsonOutput bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "memoryd - memory server with cost accounting",
	Long: `memoryd stores memories for projects and users, embeds them for
semantic search, and keeps a running account of what every embedding and
completion call cost.

Run "memoryd serve" to start the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if err := logging.Initialize(logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the memoryd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "memoryd %s\n", version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "memoryd.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	namesCmd.AddCommand(namesListCmd)
	namesCmd.AddCommand(namesSetCmd)

	costsCmd.AddCommand(costsShowCmd)
	costsCmd.AddCommand(costsResetCmd)

	statsCmd.Flags().BoolVar(&statsProjects, "projects", false, "Also list every project and user")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(namesCmd)
	rootCmd.AddCommand(costsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printJSON writes v indented, for --json output.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dpd",
		Short: "DPD weight evolution engine",
		Long: `dpd evolves the empathy, coherence and dissonance weights of a
consciousness stream from per-cycle scores.

Every update is persisted as a version in SQLite, published as an event
and narrated in the background by the configured interpreter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default $DPD_CONFIG or ~/.dpd/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newRunCmd(),
		newInspectCmd(),
		newRollbackCmd(),
		newReplayCmd(),
		newExportFixtureCmd(),
		newMCPServerCmd(),
		newInterpreterServeCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "dpd version %s\n", version)
			}
		},
	}
}

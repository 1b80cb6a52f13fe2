package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Make an earlier weight version active again",
		Long: `Point the stream back at a stored version. Later updates branch from it,
so version numbers may repeat; the newest vector with the number is chosen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("version") {
				return fmt.Errorf("--version is required")
			}
			target, _ := cmd.Flags().GetInt64("version")
			jsonOut, _ := cmd.Flags().GetBool("json")

			orch, _, err := openOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer orch.Close()

			rec, err := orch.Rollback(target)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd, map[string]any{
					"version_id": rec.VersionID,
					"weights":    rec.Weights,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back to v%d (%s): empathy=%.4f coherence=%.4f dissonance=%.4f\n",
				rec.Weights.Version, shortID(rec.VersionID),
				rec.Weights.Empathy, rec.Weights.Coherence, rec.Weights.Dissonance)
			return nil
		},
	}
	cmd.Flags().Int64("version", 0, "Version number to restore")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/replay"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

func newExportFixtureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-fixture",
		Short: "Write the recorded score history as a replay fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			expect, _ := cmd.Flags().GetBool("expect")
			description, _ := cmd.Flags().GetString("description")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			scores, err := recordedScores(cfg.DBPath)
			if err != nil {
				return err
			}
			if len(scores) == 0 {
				return fmt.Errorf("no scores recorded in %s", cfg.DBPath)
			}
			if description == "" {
				description = fmt.Sprintf("%d cycles exported from %s", len(scores), cfg.DBPath)
			}

			f, err := replay.NewFixture(description, weights.Initial(), scores, replay.Config{
				Params:               cfg.Params(),
				EvalConfig:           eval.ConfigFromParams(cfg.Params()),
				ConvergenceThreshold: cfg.Stage.ConvergenceThreshold,
			}, expect)
			if err != nil {
				return err
			}
			if err := replay.WriteFixture(outPath, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cycles to %s\n", len(f.Cycles), outPath)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Fixture path (.json, .yaml or .yml)")
	cmd.Flags().Bool("expect", true, "Record the current replay outcome as expectations")
	cmd.Flags().String("description", "", "Fixture description")
	return cmd
}

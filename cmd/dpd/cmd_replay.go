package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/replay"
	"github.com/danielpatrickdp/dpd-weights/internal/state"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region replay-cmd

type replayOutput struct {
	Source  string          `json:"source"`
	Summary replay.Summary  `json:"summary"`
	Results []replay.Result `json:"results,omitempty"`
	Check   string          `json:"check,omitempty"`
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a fixture or the recorded score history in memory",
		Long: `Replay a score sequence through the update rule without touching the
database. With --fixture the sequence and its expectations come from a JSON
or YAML fixture; otherwise the recorded score history is replayed from the
initial weights under the configured parameters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixturePath, _ := cmd.Flags().GetString("fixture")
			verbose, _ := cmd.Flags().GetBool("verbose")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var (
				out     replayOutput
				fixture *replay.Fixture
				start   weights.Weights
				cycles  []replay.Cycle
				rcfg    replay.Config
			)

			if fixturePath != "" {
				f, err := replay.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				fixture = f
				start, cycles, rcfg = f.StartWeights(), f.ToCycles(), f.ToConfig()
				out.Source = fixturePath
			} else {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				scores, err := recordedScores(cfg.DBPath)
				if err != nil {
					return err
				}
				start = weights.Initial()
				cycles = make([]replay.Cycle, len(scores))
				for i, sc := range scores {
					cycles[i] = replay.Cycle{ID: fmt.Sprintf("r%d", i+1), Scores: sc}
				}
				rcfg = replay.Config{
					Params:               cfg.Params(),
					EvalConfig:           eval.ConfigFromParams(cfg.Params()),
					ConvergenceThreshold: cfg.Stage.ConvergenceThreshold,
				}
				out.Source = cfg.DBPath
			}

			results, err := replay.Replay(start, cycles, rcfg)
			if err != nil {
				return err
			}
			out.Summary = replay.Summarize(results, replay.FinalWeights(start, results))
			if verbose {
				out.Results = results
			}

			var checkErr error
			if fixture != nil {
				checkErr = fixture.Check(out.Summary)
				out.Check = "pass"
				if checkErr != nil {
					out.Check = checkErr.Error()
				}
			}

			if jsonOut {
				if err := printJSON(cmd, out); err != nil {
					return err
				}
			} else {
				printReplay(cmd.OutOrStdout(), out)
			}
			if checkErr != nil {
				return fmt.Errorf("fixture check failed: %w", checkErr)
			}
			return nil
		},
	}
	cmd.Flags().String("fixture", "", "Path to a JSON or YAML fixture")
	cmd.Flags().Bool("verbose", false, "Include per-cycle results")
	return cmd
}

// recordedScores returns every recorded score row, oldest first.
func recordedScores(dbPath string) ([]weights.Scores, error) {
	store, err := state.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	rows, err := store.ListScores(-1)
	if err != nil {
		return nil, err
	}
	scores := make([]weights.Scores, len(rows))
	for i, r := range rows {
		scores[i] = r.Scores
	}
	slices.Reverse(scores)
	return scores, nil
}

// #endregion replay-cmd

// #region replay-print

func printReplay(w io.Writer, out replayOutput) {
	s := out.Summary
	if len(out.Results) > 0 {
		fmt.Fprintf(w, "%-10s  %-11s  %8s  %9s  %10s  %8s  %8s\n",
			"Cycle", "Action", "Empathy", "Coherence", "Dissonance", "|Δ|", "Conv")
		for _, r := range out.Results {
			n := r.Update.New
			fmt.Fprintf(w, "%-10s  %-11s  %8.4f  %9.4f  %10.4f  %8.4f  %8.4f\n",
				r.CycleID, r.Action, n.Empathy, n.Coherence, n.Dissonance,
				r.Update.UpdateMagnitude, r.Update.ConvergenceMetric)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Source:        %s\n", out.Source)
	fmt.Fprintf(w, "Cycles:        %d (commits %d, eval rejects %d, adjustments %d)\n",
		s.TotalCycles, s.Commits, s.EvalRejects, s.Adjustments)
	if s.ConvergedAt > 0 {
		fmt.Fprintf(w, "Converged at:  cycle %d\n", s.ConvergedAt)
	} else {
		fmt.Fprintln(w, "Converged at:  never")
	}
	fmt.Fprintf(w, "Magnitude:     mean %.4f, max %.4f\n", s.MeanMagnitude, s.MaxMagnitude)
	fmt.Fprintf(w, "Final weights: empathy=%.6f coherence=%.6f dissonance=%.6f (%s leads)\n",
		s.FinalWeights.Empathy, s.FinalWeights.Coherence, s.FinalWeights.Dissonance,
		replay.Dominant(s.FinalWeights))
	if out.Check != "" {
		fmt.Fprintf(w, "Check:         %s\n", out.Check)
	}
}

// #endregion replay-print

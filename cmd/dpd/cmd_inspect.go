package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/dpd-weights/internal/orchestrator"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region inspect-cmd

type versionRow struct {
	VersionID   string  `json:"version_id"`
	ParentID    string  `json:"parent_id,omitempty"`
	Version     int64   `json:"version"`
	Empathy     float64 `json:"empathy"`
	Coherence   float64 `json:"coherence"`
	Dissonance  float64 `json:"dissonance"`
	Convergence float64 `json:"convergence"`
	CreatedAt   string  `json:"created_at"`
}

type decayedScores struct {
	HalfLife string         `json:"half_life"`
	Samples  int            `json:"samples"`
	Mean     weights.Scores `json:"mean"`
}

type inspectOutput struct {
	Status    orchestrator.Status `json:"status"`
	Versions  []versionRow        `json:"versions"`
	Decayed   decayedScores       `json:"decayed_scores"`
	Narrative string              `json:"narrative,omitempty"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show active weights, recent versions, scores and the latest interpretation",
		RunE: func(cmd *cobra.Command, args []string) error {
			last, _ := cmd.Flags().GetInt("last")
			halfLife, _ := cmd.Flags().GetDuration("half-life")
			jsonOut, _ := cmd.Flags().GetBool("json")

			orch, _, err := openOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer orch.Close()

			out, err := collectInspect(orch, last, halfLife)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd, out)
			}
			printInspect(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().Int("last", 20, "Show N most recent versions")
	cmd.Flags().Duration("half-life", 24*time.Hour, "Half-life of the decayed score average")
	return cmd
}

func collectInspect(orch *orchestrator.Orchestrator, last int, halfLife time.Duration) (inspectOutput, error) {
	var out inspectOutput

	st, err := orch.Status()
	if err != nil {
		return out, err
	}
	out.Status = st

	records, err := orch.Versions(last)
	if err != nil {
		return out, err
	}
	out.Versions = make([]versionRow, len(records))
	for i, r := range records {
		out.Versions[i] = versionRow{
			VersionID:   r.VersionID,
			ParentID:    r.ParentID,
			Version:     r.Weights.Version,
			Empathy:     r.Weights.Empathy,
			Coherence:   r.Weights.Coherence,
			Dissonance:  r.Weights.Dissonance,
			Convergence: r.Weights.ConvergenceMetric,
			CreatedAt:   r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	mean, n, err := orch.DecayedScores(halfLife)
	if err != nil {
		return out, err
	}
	out.Decayed = decayedScores{HalfLife: halfLife.String(), Samples: n, Mean: mean}

	narr, err := orch.LatestNarrative()
	if err != nil {
		return out, err
	}
	if narr != nil {
		out.Narrative = narr.Text
	}
	return out, nil
}

// #endregion inspect-cmd

// #region inspect-print

func printInspect(w io.Writer, out inspectOutput) {
	st := out.Status
	fmt.Fprintf(w, "Active:      %s (v%d)\n", shortID(st.VersionID), st.Weights.Version)
	fmt.Fprintf(w, "Weights:     empathy=%.4f coherence=%.4f dissonance=%.4f\n",
		st.Weights.Empathy, st.Weights.Coherence, st.Weights.Dissonance)
	fmt.Fprintf(w, "Convergence: metric=%.4f converging=%t\n",
		st.Convergence.ConvergenceMetric, st.Convergence.IsConverging)
	if st.Frozen {
		fmt.Fprintln(w, "Frozen:      true")
	}

	fmt.Fprintf(w, "\n%-10s  %5s  %8s  %9s  %10s  %8s  %s\n",
		"Version", "N", "Empathy", "Coherence", "Dissonance", "Conv", "Time")
	fmt.Fprintf(w, "%-10s+-%5s+-%8s+-%9s+-%10s+-%8s+-%s\n",
		"----------", "-----", "--------", "---------", "----------", "--------", "--------------------")
	for _, r := range out.Versions {
		fmt.Fprintf(w, "%-10s  %5d  %8.4f  %9.4f  %10.4f  %8.4f  %s\n",
			shortID(r.VersionID), r.Version, r.Empathy, r.Coherence, r.Dissonance, r.Convergence, r.CreatedAt)
	}

	d := out.Decayed
	if d.Samples > 0 {
		fmt.Fprintf(w, "\nScores (half-life %s, %d samples): empathy=%.3f coherence=%.3f dissonance=%.3f\n",
			d.HalfLife, d.Samples, d.Mean.Empathy, d.Mean.Coherence, d.Mean.Dissonance)
	} else {
		fmt.Fprintln(w, "\nScores: none recorded")
	}

	if out.Narrative != "" {
		fmt.Fprintf(w, "\nLatest interpretation:\n  %s\n", out.Narrative)
	}
}

// #endregion inspect-print

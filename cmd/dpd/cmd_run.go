package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/dpd-weights/internal/orchestrator"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region run-cmd

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Feed score cycles from stdin and evolve the weights",
		Long: `Read one cycle of scores per line from stdin and apply it to the active
weights. A line is either a JSON object

  {"empathy": 0.9, "coherence": 0.4, "dissonance": 0.1}

or three numbers separated by spaces or commas:

  0.9 0.4 0.1

Blank lines and lines starting with # are skipped; "quit" or "exit" stops.
Malformed lines are reported on stderr and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, _, err := openOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer orch.Close()

			jsonOut, _ := cmd.Flags().GetBool("json")
			return runLoop(cmd, orch, cmd.InOrStdin(), jsonOut)
		},
	}
}

func runLoop(cmd *cobra.Command, orch *orchestrator.Orchestrator, in io.Reader, jsonOut bool) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		scores, err := parseScores(line)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", lineNum, err)
			continue
		}

		res, err := orch.Step(cmd.Context(), scores)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}

		if jsonOut {
			if err := json.NewEncoder(out).Encode(res); err != nil {
				return err
			}
			continue
		}
		printStep(out, res)
	}
	return scanner.Err()
}

func printStep(w io.Writer, res orchestrator.StepResult) {
	n := res.Update.New
	status := "committed"
	if !res.Committed {
		status = "frozen"
	}
	fmt.Fprintf(w, "v%-4d  E=%.4f  C=%.4f  D=%.4f  |Δ|=%.4f  conv=%.4f  %s %s\n",
		n.Version, n.Empathy, n.Coherence, n.Dissonance,
		res.Update.UpdateMagnitude, res.Update.ConvergenceMetric, status, shortID(res.VersionID))
	for _, adj := range res.Update.Adjustments {
		fmt.Fprintf(w, "       adjusted: %s\n", adj)
	}
}

// #endregion run-cmd

// #region parse-scores

// parseScores accepts a JSON object or three numbers.
func parseScores(line string) (weights.Scores, error) {
	if strings.HasPrefix(line, "{") {
		var sc weights.Scores
		if err := json.Unmarshal([]byte(line), &sc); err != nil {
			return weights.Scores{}, fmt.Errorf("parse scores json: %w", err)
		}
		return sc, nil
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 3 {
		return weights.Scores{}, fmt.Errorf("expected 3 scores, got %d", len(fields))
	}
	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return weights.Scores{}, fmt.Errorf("parse score %q: %w", f, err)
		}
		vals[i] = v
	}
	return weights.Scores{Empathy: vals[0], Coherence: vals[1], Dissonance: vals[2]}, nil
}

// #endregion parse-scores

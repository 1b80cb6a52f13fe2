package replay

import (
	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region types
// Cycle is one recorded set of scores to replay.
type Cycle struct {
	ID     string
	Scores weights.Scores
}

// Config bundles the update parameters and invariant bounds for a replay run.
type Config struct {
	Params               weights.Params
	EvalConfig           eval.EvalConfig
	ConvergenceThreshold float64
}

// DefaultConfig returns production parameters with matching eval bounds.
func DefaultConfig() Config {
	p := weights.DefaultParams()
	return Config{
		Params:               p,
		EvalConfig:           eval.ConfigFromParams(p),
		ConvergenceThreshold: 0.1,
	}
}

// Result captures the outcome of replaying one cycle.
type Result struct {
	CycleID    string
	Action     string // "commit" | "eval_reject"
	Reason     string
	Update     weights.UpdateResult
	Eval       eval.EvalResult
	Converging bool
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalCycles   int
	Commits       int
	EvalRejects   int
	Adjustments   int
	ConvergedAt   int // 1-based cycle at which the metric first fell below threshold; 0 if never
	FinalWeights  weights.Weights
	MeanMagnitude float64
	MaxMagnitude  float64
}

// #endregion types

// #region replay
// Replay applies each cycle in order, starting from start: update, then
// invariant check, then commit. A rejected update leaves the current weights
// in place. Operates entirely in memory.
func Replay(start weights.Weights, cycles []Cycle, config Config) ([]Result, error) {
	updater, err := weights.NewUpdater(config.Params)
	if err != nil {
		return nil, err
	}
	checker := eval.NewEvalHarness(config.EvalConfig)

	current := start
	results := make([]Result, 0, len(cycles))

	for _, c := range cycles {
		// 1. Update
		update := updater.Update(current, c.Scores)

		// 2. Eval
		check := checker.Run(update.New)
		if !check.Passed {
			results = append(results, Result{
				CycleID: c.ID,
				Action:  "eval_reject",
				Reason:  check.Reason,
				Update:  update,
				Eval:    check,
			})
			continue
		}

		// 3. Commit
		current = update.New
		results = append(results, Result{
			CycleID:    c.ID,
			Action:     "commit",
			Reason:     check.Reason,
			Update:     update,
			Eval:       check,
			Converging: update.ConvergenceMetric < config.ConvergenceThreshold,
		})
	}

	return results, nil
}

// FinalWeights returns the weights after the last committed cycle, or start
// when nothing was committed.
func FinalWeights(start weights.Weights, results []Result) weights.Weights {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Action == "commit" {
			return results[i].Update.New
		}
	}
	return start
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result, final weights.Weights) Summary {
	s := Summary{
		TotalCycles:  len(results),
		FinalWeights: final,
	}
	var total float64
	for i, r := range results {
		switch r.Action {
		case "commit":
			s.Commits++
		case "eval_reject":
			s.EvalRejects++
		}
		s.Adjustments += len(r.Update.Adjustments)
		if r.Converging && s.ConvergedAt == 0 {
			s.ConvergedAt = i + 1
		}
		total += r.Update.UpdateMagnitude
		if r.Update.UpdateMagnitude > s.MaxMagnitude {
			s.MaxMagnitude = r.Update.UpdateMagnitude
		}
	}
	if len(results) > 0 {
		s.MeanMagnitude = total / float64(len(results))
	}
	return s
}

// #endregion replay

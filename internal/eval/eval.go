package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region eval-harness
// EvalHarness checks the simplex invariants of a weight vector after an update.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// ConfigFromParams derives eval bounds from the updater's parameters.
func ConfigFromParams(p weights.Params) EvalConfig {
	cfg := DefaultEvalConfig()
	cfg.MinWeight = p.MinWeight
	cfg.MaxWeight = p.MaxWeight
	return cfg
}

// Run validates w. It never modifies the vector; a failure means the update
// path produced something it should not have.
func (h *EvalHarness) Run(w weights.Weights) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	components := []struct {
		name string
		v    float64
	}{
		{"empathy", w.Empathy},
		{"coherence", w.Coherence},
		{"dissonance", w.Dissonance},
	}

	// 1. Finite components
	finite := true
	for _, c := range components {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			finite = false
			failReasons = append(failReasons, fmt.Sprintf("%s weight is not finite", c.name))
		}
	}
	metrics = append(metrics, EvalMetric{Name: "finite", Value: boolValue(finite), Pass: finite})

	// 2. Sum to one
	sumDev := math.Abs(w.Sum() - 1)
	sumPass := sumDev <= h.config.SumTolerance
	metrics = append(metrics, EvalMetric{Name: "sum_deviation", Value: sumDev, Pass: sumPass})
	if !sumPass {
		failReasons = append(failReasons, fmt.Sprintf("sum deviates from 1 by %.3g", sumDev))
	}

	// 3. Per-component bounds
	for _, c := range components {
		pass := c.v >= h.config.MinWeight-h.config.SumTolerance && c.v <= h.config.MaxWeight+h.config.SumTolerance
		metrics = append(metrics, EvalMetric{
			Name:  fmt.Sprintf("bounds_%s", c.name),
			Value: c.v,
			Pass:  pass,
		})
		if !pass {
			failReasons = append(failReasons, fmt.Sprintf("%s weight %.6f outside [%.4f, %.4f]",
				c.name, c.v, h.config.MinWeight, h.config.MaxWeight))
		}
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers

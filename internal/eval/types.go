package eval

// #region eval-config
// EvalConfig holds the bounds a committed weight vector must satisfy.
type EvalConfig struct {
	MinWeight    float64 // per-component floor
	MaxWeight    float64 // per-component cap
	SumTolerance float64 // allowed |Σw - 1|
}

// DefaultEvalConfig returns bounds matching weights.DefaultParams.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinWeight:    0.05,
		MaxWeight:    0.85,
		SumTolerance: 1e-9,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-update validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result

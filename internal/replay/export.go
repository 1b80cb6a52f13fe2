package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region build-fixture

// NewFixture captures a recorded score sequence as a fixture. When expect is
// set, the current outcome of replaying it becomes the expectation, so later
// tuning changes show up as check failures.
func NewFixture(description string, start weights.Weights, scores []weights.Scores, config Config, expect bool) (*Fixture, error) {
	f := &Fixture{
		Description: description,
		Start: FixtureWeights{
			Empathy:    start.Empathy,
			Coherence:  start.Coherence,
			Dissonance: start.Dissonance,
		},
		Config: FixtureConfig{
			Params:               config.Params,
			ConvergenceThreshold: config.ConvergenceThreshold,
		},
		Cycles: make([]FixtureCycle, 0, len(scores)),
	}
	for i, sc := range scores {
		f.Cycles = append(f.Cycles, FixtureCycle{
			ID:         fmt.Sprintf("r%d", i+1),
			Empathy:    sc.Empathy,
			Coherence:  sc.Coherence,
			Dissonance: sc.Dissonance,
		})
	}

	if !expect || len(scores) == 0 {
		return f, nil
	}

	results, err := Replay(f.StartWeights(), f.ToCycles(), f.ToConfig())
	if err != nil {
		return nil, err
	}
	summary := Summarize(results, FinalWeights(f.StartWeights(), results))
	w := summary.FinalWeights
	f.Expected = FixtureExpected{
		Dominant:     Dominant(w),
		ConvergedBy:  summary.ConvergedAt,
		FinalWeights: &FixtureWeights{Empathy: w.Empathy, Coherence: w.Coherence, Dissonance: w.Dissonance},
		Tolerance:    1e-9,
	}
	return f, nil
}

// #endregion build-fixture

// #region write-fixture

// WriteFixture writes f as JSON or YAML, chosen by the extension of path.
func WriteFixture(path string, f *Fixture) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(f)
	default:
		data, err = json.MarshalIndent(f, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// #endregion write-fixture

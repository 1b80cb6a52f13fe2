package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region fixture-types

// Fixture is a recorded score sequence with the outcome it should produce.
// Fixtures are JSON or YAML, chosen by file extension.
type Fixture struct {
	Description string          `json:"description" yaml:"description"`
	Start       FixtureWeights  `json:"start" yaml:"start"`
	Config      FixtureConfig   `json:"config" yaml:"config"`
	Cycles      []FixtureCycle  `json:"cycles" yaml:"cycles"`
	Expected    FixtureExpected `json:"expected" yaml:"expected"`
}

// FixtureWeights is a serializable weight vector.
type FixtureWeights struct {
	Empathy    float64 `json:"empathy" yaml:"empathy"`
	Coherence  float64 `json:"coherence" yaml:"coherence"`
	Dissonance float64 `json:"dissonance" yaml:"dissonance"`
}

// FixtureConfig overrides the default replay configuration.
type FixtureConfig struct {
	Params               weights.Params `json:"params" yaml:"params"`
	ConvergenceThreshold float64        `json:"convergence_threshold" yaml:"convergence_threshold"`
}

// FixtureCycle is one recorded set of scores.
type FixtureCycle struct {
	ID         string  `json:"id" yaml:"id"`
	Empathy    float64 `json:"empathy" yaml:"empathy"`
	Coherence  float64 `json:"coherence" yaml:"coherence"`
	Dissonance float64 `json:"dissonance" yaml:"dissonance"`
	Repeat     int     `json:"repeat,omitempty" yaml:"repeat,omitempty"`
}

// FixtureExpected lists the checks applied after replay. Zero values skip a check.
type FixtureExpected struct {
	Dominant     string          `json:"dominant,omitempty" yaml:"dominant,omitempty"`
	ConvergedBy  int             `json:"converged_by,omitempty" yaml:"converged_by,omitempty"`
	FinalWeights *FixtureWeights `json:"final_weights,omitempty" yaml:"final_weights,omitempty"`
	Tolerance    float64         `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// #endregion fixture-types

// #region load-fixture

// LoadFixture reads a JSON or YAML fixture. Unset config keys keep their defaults.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	def := DefaultConfig()
	f := &Fixture{Config: FixtureConfig{
		Params:               def.Params,
		ConvergenceThreshold: def.ConvergenceThreshold,
	}}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parse fixture: %w", err)
		}
	default:
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parse fixture: %w", err)
		}
	}

	if len(f.Cycles) == 0 {
		return nil, fmt.Errorf("fixture %s has no cycles", path)
	}
	return f, nil
}

// #endregion load-fixture

// #region converters

// StartWeights returns the fixture's start vector, or weights.Initial when unset.
func (f *Fixture) StartWeights() weights.Weights {
	s := f.Start
	if s.Empathy == 0 && s.Coherence == 0 && s.Dissonance == 0 {
		return weights.Initial()
	}
	return weights.Weights{Empathy: s.Empathy, Coherence: s.Coherence, Dissonance: s.Dissonance}
}

// ToCycles expands repeated entries into individual cycles.
func (f *Fixture) ToCycles() []Cycle {
	var out []Cycle
	for i, c := range f.Cycles {
		n := c.Repeat
		if n < 1 {
			n = 1
		}
		for k := 0; k < n; k++ {
			id := c.ID
			if id == "" {
				id = fmt.Sprintf("c%d", i+1)
			}
			if n > 1 {
				id = fmt.Sprintf("%s.%d", id, k+1)
			}
			out = append(out, Cycle{
				ID:     id,
				Scores: weights.Scores{Empathy: c.Empathy, Coherence: c.Coherence, Dissonance: c.Dissonance},
			})
		}
	}
	return out
}

// ToConfig builds the replay configuration.
func (f *Fixture) ToConfig() Config {
	return Config{
		Params:               f.Config.Params,
		EvalConfig:           eval.ConfigFromParams(f.Config.Params),
		ConvergenceThreshold: f.Config.ConvergenceThreshold,
	}
}

// #endregion converters

// #region check

// Check compares a replay summary against the fixture's expectations.
func (f *Fixture) Check(s Summary) error {
	exp := f.Expected

	if exp.Dominant != "" {
		if got := Dominant(s.FinalWeights); got != exp.Dominant {
			return fmt.Errorf("dominant component: got %s, want %s", got, exp.Dominant)
		}
	}

	if exp.ConvergedBy > 0 && (s.ConvergedAt == 0 || s.ConvergedAt > exp.ConvergedBy) {
		return fmt.Errorf("converged at cycle %d, want by %d", s.ConvergedAt, exp.ConvergedBy)
	}

	if exp.FinalWeights != nil {
		tol := exp.Tolerance
		if tol <= 0 {
			tol = 1e-6
		}
		w := s.FinalWeights
		want := *exp.FinalWeights
		if math.Abs(w.Empathy-want.Empathy) > tol ||
			math.Abs(w.Coherence-want.Coherence) > tol ||
			math.Abs(w.Dissonance-want.Dissonance) > tol {
			return fmt.Errorf("final weights (%.6f, %.6f, %.6f) differ from (%.6f, %.6f, %.6f) beyond %g",
				w.Empathy, w.Coherence, w.Dissonance, want.Empathy, want.Coherence, want.Dissonance, tol)
		}
	}
	return nil
}

// Dominant names the largest component of w. Ties resolve in the order
// empathy, coherence, dissonance.
func Dominant(w weights.Weights) string {
	name, best := "empathy", w.Empathy
	if w.Coherence > best {
		name, best = "coherence", w.Coherence
	}
	if w.Dissonance > best {
		name = "dissonance"
	}
	return name
}

// #endregion check

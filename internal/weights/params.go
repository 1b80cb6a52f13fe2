package weights

import (
	"errors"
	"fmt"
	"math"
)

// #region params
// Params holds the multiplicative-weights configuration. It is fixed for the
// lifetime of an Updater.
type Params struct {
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`   // exponent scale on scores (default 0.05)
	Regularization float64 `json:"regularization" yaml:"regularization"` // pull toward uniform per update (default 0.01)
	MinWeight      float64 `json:"min_weight" yaml:"min_weight"`         // per-component floor (default 0.05)
	MaxWeight      float64 `json:"max_weight" yaml:"max_weight"`         // per-component cap (default 0.85)
	DecayFactor    float64 `json:"decay_factor" yaml:"decay_factor"`     // erosion of old weight mass (default 0.99)
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		LearningRate:   0.05,
		Regularization: 0.01,
		MinWeight:      0.05,
		MaxWeight:      0.85,
		DecayFactor:    0.99,
	}
}

// #endregion params

// #region config-error
// ErrConfiguration is wrapped by every ConfigError.
var ErrConfiguration = errors.New("invalid weight configuration")

// ConfigError reports a parameter set that cannot produce a valid weight vector.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%g %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// #endregion config-error

// #region validate
// Validate reports the first parameter that makes the clamp-and-normalize
// projection infeasible or the update ill-defined.
func (p Params) Validate() error {
	finite := []struct {
		name string
		v    float64
	}{
		{"learning_rate", p.LearningRate},
		{"regularization", p.Regularization},
		{"min_weight", p.MinWeight},
		{"max_weight", p.MaxWeight},
		{"decay_factor", p.DecayFactor},
	}
	for _, f := range finite {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ConfigError{Field: f.name, Value: f.v, Reason: "must be finite"}
		}
	}

	if p.LearningRate <= 0 {
		return &ConfigError{Field: "learning_rate", Value: p.LearningRate, Reason: "must be > 0"}
	}
	if p.Regularization < 0 || p.Regularization > 1 {
		return &ConfigError{Field: "regularization", Value: p.Regularization, Reason: "must be in [0, 1]"}
	}
	if p.MinWeight < 0 || p.MinWeight > 1 {
		return &ConfigError{Field: "min_weight", Value: p.MinWeight, Reason: "must be in [0, 1]"}
	}
	if p.MaxWeight <= 0 || p.MaxWeight > 1 {
		return &ConfigError{Field: "max_weight", Value: p.MaxWeight, Reason: "must be in (0, 1]"}
	}
	if p.DecayFactor <= 0 || p.DecayFactor > 1 {
		return &ConfigError{Field: "decay_factor", Value: p.DecayFactor, Reason: "must be in (0, 1]"}
	}
	if p.MinWeight > p.MaxWeight {
		return &ConfigError{Field: "min_weight", Value: p.MinWeight, Reason: fmt.Sprintf("exceeds max_weight %g", p.MaxWeight)}
	}
	if 3*p.MinWeight > 1 {
		return &ConfigError{Field: "min_weight", Value: p.MinWeight, Reason: "three floors exceed a total of 1"}
	}
	if 3*p.MaxWeight < 1 {
		return &ConfigError{Field: "max_weight", Value: p.MaxWeight, Reason: "three caps cannot reach a total of 1"}
	}
	return nil
}

// #endregion validate

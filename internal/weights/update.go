package weights

import (
	"fmt"
	"math"
)

// #region constants
const (
	// ConvergenceSmoothing is the EMA factor applied to each new update magnitude.
	ConvergenceSmoothing = 0.2
	// ConvergenceSeed is the prior metric of a vector that has never been updated.
	ConvergenceSeed = 1.0

	maxExponent       = 50.0
	minProjectionMass = 1e-12
	bisectIterations  = 200
)

// #endregion constants

// #region updater
// Updater applies the multiplicative-weights rule with a fixed, validated
// parameter set. It holds no state between calls.
type Updater struct {
	params Params
}

// NewUpdater validates p and returns an Updater. Infeasible parameters are
// rejected here with a *ConfigError rather than surfacing mid-update.
func NewUpdater(p Params) (*Updater, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Updater{params: p}, nil
}

// Params returns the parameter set the updater was built with.
func (u *Updater) Params() Params {
	return u.params
}

// #endregion updater

// #region update-function
// Update computes the next weight vector from the current one and a cycle's
// scores. It is a pure function of its inputs and the updater's params:
// identical inputs yield bit-identical results. Out-of-range inputs are
// clamped and reported in UpdateResult.Adjustments; Update never fails.
func (u *Updater) Update(current Weights, scores Scores) UpdateResult {
	p := u.params

	cur, adjustments := sanitizeWeights(current.array())
	sc, scoreAdj := sanitizeScores(scores.array())
	adjustments = append(adjustments, scoreAdj...)

	// 1-4. Decayed exponential reward, then a pull toward the uniform prior
	var reg [3]float64
	for i := range cur {
		exponent := clampFloat(p.LearningRate*sc[i], -maxExponent, maxExponent)
		raw := cur[i] * p.DecayFactor * math.Exp(exponent)
		reg[i] = raw*(1-p.Regularization) + p.Regularization/3
	}

	// 5-6. Clamp and renormalize onto the bounded simplex
	next := project(reg, p.MinWeight, p.MaxWeight)

	// 7. L1 distance moved this cycle
	var magnitude float64
	for i := range next {
		magnitude += math.Abs(next[i] - cur[i])
	}

	// 8. Exponentially smoothed magnitude
	prior := current.ConvergenceMetric
	if current.Version == 0 || math.IsNaN(prior) || math.IsInf(prior, 0) || prior < 0 {
		prior = ConvergenceSeed
	}
	convergence := ConvergenceSmoothing*magnitude + (1-ConvergenceSmoothing)*prior

	ts := scores.Timestamp
	if ts.IsZero() {
		ts = current.Timestamp
	}

	previous := Weights{
		Empathy:           cur[0],
		Coherence:         cur[1],
		Dissonance:        cur[2],
		Timestamp:         current.Timestamp,
		Version:           current.Version,
		ConvergenceMetric: current.ConvergenceMetric,
	}
	updated := Weights{
		Empathy:           next[0],
		Coherence:         next[1],
		Dissonance:        next[2],
		Timestamp:         ts,
		Version:           current.Version + 1,
		ConvergenceMetric: convergence,
	}

	return UpdateResult{
		Previous: previous,
		New:      updated,
		Scores: Scores{
			Empathy:    sc[0],
			Coherence:  sc[1],
			Dissonance: sc[2],
			Timestamp:  scores.Timestamp,
		},
		UpdateMagnitude:   magnitude,
		ConvergenceMetric: convergence,
		Delta: Delta{
			Empathy:    next[0] - cur[0],
			Coherence:  next[1] - cur[1],
			Dissonance: next[2] - cur[2],
		},
		Adjustments: adjustments,
	}
}

// #endregion update-function

// #region projection
// project clamps x to [lo, hi] and renormalizes it to sum to 1. When the
// renormalization pushes a component back out of bounds, it falls back to
// the exact bounded projection.
func project(x [3]float64, lo, hi float64) [3]float64 {
	var clamped [3]float64
	var sum float64
	for i, v := range x {
		clamped[i] = clampFloat(v, lo, hi)
		sum += clamped[i]
	}

	if sum > 0 {
		var out [3]float64
		inBounds := true
		for i, v := range clamped {
			out[i] = v / sum
			if out[i] < lo || out[i] > hi {
				inBounds = false
			}
		}
		if inBounds {
			return out
		}
	}

	return bisectProjection(x, lo, hi)
}

// bisectProjection finds the scale λ with Σ clamp(λ·x_i, lo, hi) = 1.
// The sum is continuous and non-decreasing in λ, spans [3·lo, 3·hi] and
// therefore crosses 1 for any validated Params.
func bisectProjection(x [3]float64, lo, hi float64) [3]float64 {
	for i := range x {
		if x[i] < minProjectionMass {
			x[i] = minProjectionMass
		}
	}

	mass := func(scale float64) float64 {
		var total float64
		for _, v := range x {
			total += clampFloat(v*scale, lo, hi)
		}
		return total
	}

	low, high := 0.0, 1.0
	for i := 0; mass(high) < 1 && i < 2048; i++ {
		high *= 2
	}
	for i := 0; i < bisectIterations; i++ {
		mid := low + (high-low)/2
		if mid == low || mid == high {
			break
		}
		if mass(mid) < 1 {
			low = mid
		} else {
			high = mid
		}
	}

	var out [3]float64
	for i, v := range x {
		out[i] = clampFloat(v*high, lo, hi)
	}
	return out
}

// #endregion projection

// #region sanitize
// sanitizeScores clamps each score to [0, 1]. NaN becomes 0.
func sanitizeScores(s [3]float64) ([3]float64, []string) {
	var adjustments []string
	for i, v := range s {
		switch {
		case math.IsNaN(v):
			s[i] = 0
			adjustments = append(adjustments, fmt.Sprintf("%s score NaN replaced with 0", componentNames[i]))
		case v < 0:
			s[i] = 0
			adjustments = append(adjustments, fmt.Sprintf("%s score %g clamped to 0", componentNames[i], v))
		case v > 1:
			s[i] = 1
			adjustments = append(adjustments, fmt.Sprintf("%s score %g clamped to 1", componentNames[i], v))
		}
	}
	return s, adjustments
}

// sanitizeWeights zeroes non-finite or negative components. A vector with no
// remaining mass is reset to uniform.
func sanitizeWeights(w [3]float64) ([3]float64, []string) {
	var adjustments []string
	var sum float64
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			w[i] = 0
			adjustments = append(adjustments, fmt.Sprintf("%s weight %g reset to 0", componentNames[i], v))
		}
		sum += w[i]
	}
	if sum == 0 {
		w = [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
		adjustments = append(adjustments, "empty weight vector reset to uniform")
	}
	return w, adjustments
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion sanitize

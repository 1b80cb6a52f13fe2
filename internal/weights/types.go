package weights

import "time"

// #region weights
// Weights is the DPD weight vector: the relative importance of empathy,
// coherence and dissonance. After every update the components sum to 1.
//
// Persisting a vector means persisting ConvergenceMetric alongside the
// components and Version. Update reseeds the metric only at version 0; a
// later vector restored with a zero metric reads as already converging.
type Weights struct {
	Empathy    float64   `json:"empathy"`
	Coherence  float64   `json:"coherence"`
	Dissonance float64   `json:"dissonance"`
	Timestamp  time.Time `json:"timestamp"`
	Version    int64     `json:"version"`

	// ConvergenceMetric is the smoothed update magnitude carried forward
	// from the update that produced this vector. It is the prior of the
	// next update's smoothing.
	ConvergenceMetric float64 `json:"convergence_metric"`
}

// Initial returns the vector a fresh consciousness stream starts from.
func Initial() Weights {
	return Weights{
		Empathy:    0.34,
		Coherence:  0.33,
		Dissonance: 0.33,
	}
}

// Sum returns empathy + coherence + dissonance.
func (w Weights) Sum() float64 {
	return w.Empathy + w.Coherence + w.Dissonance
}

func (w Weights) array() [3]float64 {
	return [3]float64{w.Empathy, w.Coherence, w.Dissonance}
}

// #endregion weights

// #region scores
// Scores is one cycle's assessment of how strongly each DPD quality was
// exhibited. Components are expected in [0, 1].
type Scores struct {
	Empathy    float64   `json:"empathy"`
	Coherence  float64   `json:"coherence"`
	Dissonance float64   `json:"dissonance"`
	Timestamp  time.Time `json:"timestamp"`
}

// WeightedTotal returns Σ weight_i * score_i.
func (s Scores) WeightedTotal(w Weights) float64 {
	return w.Empathy*s.Empathy + w.Coherence*s.Coherence + w.Dissonance*s.Dissonance
}

func (s Scores) array() [3]float64 {
	return [3]float64{s.Empathy, s.Coherence, s.Dissonance}
}

// #endregion scores

// #region delta
// Delta is the per-component change new - previous.
type Delta struct {
	Empathy    float64 `json:"empathy"`
	Coherence  float64 `json:"coherence"`
	Dissonance float64 `json:"dissonance"`
}

// #endregion delta

// #region update-result
// UpdateResult bundles everything returned by Updater.Update.
type UpdateResult struct {
	Previous          Weights `json:"previous_weights"`
	New               Weights `json:"new_weights"`
	Scores            Scores  `json:"scores"`
	UpdateMagnitude   float64 `json:"update_magnitude"`
	ConvergenceMetric float64 `json:"convergence_metric"`
	Delta             Delta   `json:"per_component_delta"`

	// Adjustments lists the input clamps applied before the update ran.
	Adjustments []string `json:"adjustments,omitempty"`
}

// #endregion update-result

var componentNames = [3]string{"empathy", "coherence", "dissonance"}

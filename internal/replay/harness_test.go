package replay

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region helpers

func repeatCycles(n int, sc weights.Scores) []Cycle {
	out := make([]Cycle, n)
	for i := range out {
		out[i] = Cycle{ID: "c", Scores: sc}
	}
	return out
}

var empathyHeavy = weights.Scores{Empathy: 0.9, Coherence: 0.4, Dissonance: 0.1}

// #endregion helpers

func TestReplay_CommitPath(t *testing.T) {
	results, err := Replay(weights.Initial(), repeatCycles(3, empathyHeavy), DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Action != "commit" {
			t.Fatalf("cycle %d: expected commit, got %s (%s)", i, r.Action, r.Reason)
		}
		if r.Update.New.Version != int64(i+1) {
			t.Fatalf("cycle %d: expected version %d, got %d", i, i+1, r.Update.New.Version)
		}
		if i > 0 && r.Update.Previous != results[i-1].Update.New {
			t.Fatalf("cycle %d did not start from previous commit", i)
		}
	}
}

func TestReplay_EvalReject(t *testing.T) {
	cfg := DefaultConfig()
	// bounds tighter than the updater's, so every update fails the check
	cfg.EvalConfig = eval.EvalConfig{MinWeight: 0.34, MaxWeight: 0.34, SumTolerance: 1e-9}

	start := weights.Initial()
	results, err := Replay(start, repeatCycles(2, empathyHeavy), cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, r := range results {
		if r.Action != "eval_reject" {
			t.Fatalf("expected eval_reject, got %s", r.Action)
		}
		if r.Update.Previous.Version != 0 {
			t.Fatalf("rejected updates must not advance the stream, got previous version %d", r.Update.Previous.Version)
		}
	}
	if got := FinalWeights(start, results); got != start {
		t.Fatalf("expected start weights after rejections, got %+v", got)
	}
}

func TestReplay_InvalidParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Params.LearningRate = 0

	_, err := Replay(weights.Initial(), repeatCycles(1, empathyHeavy), cfg)
	if !errors.Is(err, weights.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestReplay_Empty(t *testing.T) {
	results, err := Replay(weights.Initial(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	s := Summarize(results, FinalWeights(weights.Initial(), results))
	if s.TotalCycles != 0 || s.MeanMagnitude != 0 || s.FinalWeights != weights.Initial() {
		t.Fatalf("unexpected summary for empty replay: %+v", s)
	}
}

func TestReplay_Summarize(t *testing.T) {
	cycles := repeatCycles(20, empathyHeavy)
	cycles[0].Scores.Empathy = 1.5 // one clamp

	results, err := Replay(weights.Initial(), cycles, DefaultConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	final := FinalWeights(weights.Initial(), results)
	s := Summarize(results, final)

	if s.TotalCycles != 20 || s.Commits != 20 || s.EvalRejects != 0 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Adjustments != 1 {
		t.Fatalf("expected 1 adjustment, got %d", s.Adjustments)
	}
	if s.ConvergedAt < 2 || s.ConvergedAt > 20 {
		t.Fatalf("expected convergence within the run, got cycle %d", s.ConvergedAt)
	}
	if !results[s.ConvergedAt-1].Converging || results[s.ConvergedAt-2].Converging {
		t.Fatalf("ConvergedAt %d is not the first converging cycle", s.ConvergedAt)
	}

	var sum, maxMag float64
	for _, r := range results {
		sum += r.Update.UpdateMagnitude
		maxMag = math.Max(maxMag, r.Update.UpdateMagnitude)
	}
	if math.Abs(s.MeanMagnitude-sum/20) > 1e-15 || s.MaxMagnitude != maxMag {
		t.Fatalf("unexpected magnitudes: %+v", s)
	}
	if s.FinalWeights != results[19].Update.New {
		t.Fatal("final weights should be the last commit")
	}
}

func TestReplay_Deterministic(t *testing.T) {
	cycles := []Cycle{
		{ID: "a", Scores: empathyHeavy},
		{ID: "b", Scores: weights.Scores{Empathy: 0.2, Coherence: 0.9, Dissonance: 0.6}},
		{ID: "c", Scores: weights.Scores{Empathy: 0.5, Coherence: 0.5, Dissonance: 0.95}},
	}

	r1, _ := Replay(weights.Initial(), cycles, DefaultConfig())
	r2, _ := Replay(weights.Initial(), cycles, DefaultConfig())

	for i := range r1 {
		a, b := r1[i].Update.New, r2[i].Update.New
		if math.Float64bits(a.Empathy) != math.Float64bits(b.Empathy) ||
			math.Float64bits(a.Coherence) != math.Float64bits(b.Coherence) ||
			math.Float64bits(a.Dissonance) != math.Float64bits(b.Dissonance) {
			t.Fatalf("cycle %s differs between runs", r1[i].CycleID)
		}
	}
}

func TestDominant(t *testing.T) {
	tests := []struct {
		w    weights.Weights
		want string
	}{
		{weights.Weights{Empathy: 0.5, Coherence: 0.3, Dissonance: 0.2}, "empathy"},
		{weights.Weights{Empathy: 0.2, Coherence: 0.5, Dissonance: 0.3}, "coherence"},
		{weights.Weights{Empathy: 0.2, Coherence: 0.3, Dissonance: 0.5}, "dissonance"},
		{weights.Weights{Empathy: 0.4, Coherence: 0.4, Dissonance: 0.2}, "empathy"},
	}
	for _, tt := range tests {
		if got := Dominant(tt.w); got != tt.want {
			t.Errorf("Dominant(%+v) = %s, want %s", tt.w, got, tt.want)
		}
	}
}

package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

func runFixture(t *testing.T, path string) (*Fixture, Summary) {
	t.Helper()
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	start := f.StartWeights()
	results, err := Replay(start, f.ToCycles(), f.ToConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return f, Summarize(results, FinalWeights(start, results))
}

func TestFixture_EmpathyRise(t *testing.T) {
	f, s := runFixture(t, filepath.Join("testdata", "empathy_rise.json"))

	if s.TotalCycles != 30 {
		t.Fatalf("expected 30 expanded cycles, got %d", s.TotalCycles)
	}
	if f.Config.Params != weights.DefaultParams() {
		t.Fatalf("expected default params, got %+v", f.Config.Params)
	}
	if err := f.Check(s); err != nil {
		t.Fatalf("fixture expectations: %v", err)
	}
}

func TestFixture_DissonanceSwingYAML(t *testing.T) {
	f, s := runFixture(t, filepath.Join("testdata", "dissonance_swing.yaml"))

	if s.TotalCycles != 24 {
		t.Fatalf("expected 24 expanded cycles, got %d", s.TotalCycles)
	}
	if f.StartWeights() != weights.Initial() {
		t.Fatalf("expected initial start weights, got %+v", f.StartWeights())
	}
	if err := f.Check(s); err != nil {
		t.Fatalf("fixture expectations: %v", err)
	}
}

func TestFixture_CheckFailures(t *testing.T) {
	f, s := runFixture(t, filepath.Join("testdata", "empathy_rise.json"))

	f.Expected.Dominant = "coherence"
	if err := f.Check(s); err == nil || !strings.Contains(err.Error(), "dominant") {
		t.Fatalf("expected dominant mismatch, got %v", err)
	}

	f.Expected.Dominant = ""
	f.Expected.ConvergedBy = 2
	if err := f.Check(s); err == nil || !strings.Contains(err.Error(), "converged") {
		t.Fatalf("expected convergence mismatch, got %v", err)
	}

	f.Expected.ConvergedBy = 0
	f.Expected.FinalWeights.Empathy += 0.01
	if err := f.Check(s); err == nil || !strings.Contains(err.Error(), "final weights") {
		t.Fatalf("expected final weight mismatch, got %v", err)
	}
}

func TestFixture_ConfigOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fast.json")
	os.WriteFile(path, []byte(`{
		"config": {"params": {"learning_rate": 2.0}},
		"cycles": [{"empathy": 1, "coherence": 0, "dissonance": 0}]
	}`), 0644)

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	p := f.Config.Params
	if p.LearningRate != 2.0 || p.DecayFactor != 0.99 || p.MaxWeight != 0.85 {
		t.Fatalf("expected partial override on defaults, got %+v", p)
	}
	if f.Config.ConvergenceThreshold != 0.1 {
		t.Fatalf("expected default threshold, got %v", f.Config.ConvergenceThreshold)
	}
	cycles := f.ToCycles()
	if len(cycles) != 1 || cycles[0].ID != "c1" {
		t.Fatalf("unexpected cycles: %+v", cycles)
	}
}

func TestLoadFixture_NotFound(t *testing.T) {
	if _, err := LoadFixture("/nonexistent/fixture.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{not valid json`), 0644)
	if _, err := LoadFixture(bad); err == nil {
		t.Fatal("expected error for malformed JSON")
	}

	badYAML := filepath.Join(dir, "bad.yaml")
	os.WriteFile(badYAML, []byte("cycles: [unclosed"), 0644)
	if _, err := LoadFixture(badYAML); err == nil {
		t.Fatal("expected error for malformed YAML")
	}

	empty := filepath.Join(dir, "empty.yml")
	os.WriteFile(empty, []byte("description: nothing here\n"), 0644)
	if _, err := LoadFixture(empty); err == nil {
		t.Fatal("expected error for fixture without cycles")
	}
}

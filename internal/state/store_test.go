package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUpdater(t *testing.T) *weights.Updater {
	t.Helper()
	u, err := weights.NewUpdater(weights.DefaultParams())
	if err != nil {
		t.Fatalf("NewUpdater: %v", err)
	}
	return u
}

func TestCreateInitialAndGetCurrent(t *testing.T) {
	s := tempDB(t)

	rec, err := s.CreateInitial(weights.Initial())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	if rec.VersionID == "" {
		t.Fatal("expected non-empty version ID")
	}
	if rec.ParentID != "" {
		t.Fatalf("expected empty parent, got %s", rec.ParentID)
	}
	if rec.Weights.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be filled in")
	}

	cur, err := s.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID != rec.VersionID {
		t.Fatalf("expected %s, got %s", rec.VersionID, cur.VersionID)
	}
	if cur.Weights.Empathy != 0.34 || cur.Weights.Coherence != 0.33 || cur.Weights.Dissonance != 0.33 {
		t.Fatalf("unexpected weights: %+v", cur.Weights)
	}
	if cur.Weights.Version != 0 {
		t.Fatalf("expected version 0, got %d", cur.Weights.Version)
	}
}

func TestWeightsRoundTripExactly(t *testing.T) {
	s := tempDB(t)
	u := mustUpdater(t)

	root, err := s.CreateInitial(weights.Initial())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}

	ts := time.Date(2026, 3, 4, 5, 6, 7, 891011, time.UTC)
	result := u.Update(root.Weights, weights.Scores{Empathy: 0.71, Coherence: 0.2, Dissonance: 0.05, Timestamp: ts})

	rec, err := s.CommitResult(root.VersionID, result)
	if err != nil {
		t.Fatalf("CommitResult: %v", err)
	}

	got, err := s.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if got.VersionID != rec.VersionID || got.ParentID != root.VersionID {
		t.Fatalf("unexpected lineage: %+v", got)
	}
	w := got.Weights
	if math.Float64bits(w.Empathy) != math.Float64bits(result.New.Empathy) ||
		math.Float64bits(w.Coherence) != math.Float64bits(result.New.Coherence) ||
		math.Float64bits(w.Dissonance) != math.Float64bits(result.New.Dissonance) ||
		math.Float64bits(w.ConvergenceMetric) != math.Float64bits(result.New.ConvergenceMetric) {
		t.Fatalf("weights not bit-identical:\n got %+v\nwant %+v", w, result.New)
	}
	if w.Version != 1 || !w.Timestamp.Equal(ts) {
		t.Fatalf("unexpected version/timestamp: %d %v", w.Version, w.Timestamp)
	}

	var m UpdateMetrics
	if err := json.Unmarshal([]byte(got.MetricsJSON), &m); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if m.UpdateMagnitude != result.UpdateMagnitude {
		t.Fatalf("metrics magnitude = %v, want %v", m.UpdateMagnitude, result.UpdateMagnitude)
	}
}

func TestCommitAndRollback(t *testing.T) {
	s := tempDB(t)
	u := mustUpdater(t)

	v0, err := s.CreateInitial(weights.Initial())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	v1, err := s.CommitResult(v0.VersionID, u.Update(v0.Weights, weights.Scores{Empathy: 1}))
	if err != nil {
		t.Fatalf("CommitResult: %v", err)
	}

	cur, _ := s.GetCurrent()
	if cur.VersionID != v1.VersionID {
		t.Fatalf("expected %s, got %s", v1.VersionID, cur.VersionID)
	}

	if err := s.Rollback(v0.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _ = s.GetCurrent()
	if cur.VersionID != v0.VersionID {
		t.Fatalf("expected rollback to %s, got %s", v0.VersionID, cur.VersionID)
	}

	// A new branch from v0 reuses version number 1
	branch, err := s.CommitResult(v0.VersionID, u.Update(cur.Weights, weights.Scores{Coherence: 1}))
	if err != nil {
		t.Fatalf("CommitResult after rollback: %v", err)
	}
	byNum, err := s.GetByNumber(1)
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if byNum.VersionID != branch.VersionID {
		t.Fatalf("expected newest branch %s, got %s", branch.VersionID, byNum.VersionID)
	}
}

func TestRollbackNonExistent(t *testing.T) {
	s := tempDB(t)
	if _, err := s.CreateInitial(weights.Initial()); err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}

	err := s.Rollback("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListVersions(t *testing.T) {
	s := tempDB(t)
	u := mustUpdater(t)

	parent, err := s.CreateInitial(weights.Initial())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	w := parent.Weights
	for i := 0; i < 4; i++ {
		r := u.Update(w, weights.Scores{Empathy: 0.8, Coherence: 0.3, Dissonance: 0.1})
		rec, err := s.CommitResult(parent.VersionID, r)
		if err != nil {
			t.Fatalf("CommitResult %d: %v", i, err)
		}
		parent, w = rec, r.New
	}

	versions, err := s.ListVersions(3)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].Weights.Version != 4 || versions[2].Weights.Version != 2 {
		t.Fatalf("expected newest first, got %d..%d", versions[0].Weights.Version, versions[2].Weights.Version)
	}
}

func TestCommitRejectsNonFinite(t *testing.T) {
	s := tempDB(t)
	err := s.Commit(WeightRecord{
		VersionID: "bad",
		Weights:   weights.Weights{Empathy: math.NaN(), Coherence: 0.5, Dissonance: 0.5},
	})
	if err == nil {
		t.Fatal("expected error for NaN weight")
	}
}

func TestNewStoreInvalidPath(t *testing.T) {
	_, err := NewStore("/nonexistent/dir/test.db")
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestDBAccessor(t *testing.T) {
	s := tempDB(t)
	if s.DB() == nil {
		t.Fatal("DB() returned nil")
	}
	// update_log is migrated with the store
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM update_log`).Scan(&n); err != nil {
		t.Fatalf("update_log missing: %v", err)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	s := tempDB(t)
	_, err := s.GetVersion("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = s.GetByNumber(99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCurrentNoActiveState(t *testing.T) {
	s := tempDB(t)
	_, err := s.GetCurrent()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
}

func TestCreateInitialOnClosedDB(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(filepath.Join(dir, "test.db"))
	s.Close()

	if _, err := s.CreateInitial(weights.Initial()); err == nil {
		t.Fatal("expected error on closed DB")
	}
}

func TestListVersionsOnClosedDB(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(filepath.Join(dir, "test.db"))
	s.Close()

	if _, err := s.ListVersions(10); err == nil {
		t.Fatal("expected error on closed DB")
	}
}

func TestRollbackOnClosedDB(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(filepath.Join(dir, "test.db"))
	s.Close()

	if err := s.Rollback("anything"); err == nil {
		t.Fatal("expected error on closed DB")
	}
}

// corruptDB opens an in-memory SQLite with full schema via NewStoreWithDB.
// Returns the Store and raw *sql.DB so tests can drop tables / insert bad data.
func corruptDB(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	s := NewStoreWithDB(db)
	t.Cleanup(func() { db.Close() })
	return s, db
}

func TestCreateInitial_InsertFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE score_history")
	db.Exec("DROP TABLE active_weights")
	db.Exec("DROP TABLE weight_versions")

	if _, err := s.CreateInitial(weights.Initial()); err == nil {
		t.Fatal("expected error when weight_versions table is missing")
	}
}

func TestCreateInitial_SetActiveFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE active_weights")

	if _, err := s.CreateInitial(weights.Initial()); err == nil {
		t.Fatal("expected error when active_weights table is missing")
	}
	// the insert must have been rolled back with the transaction
	var n int
	db.QueryRow(`SELECT COUNT(*) FROM weight_versions`).Scan(&n)
	if n != 0 {
		t.Fatalf("expected no committed versions, got %d", n)
	}
}

func TestRollback_ExecFails(t *testing.T) {
	s, db := corruptDB(t)
	rec, err := s.CreateInitial(weights.Initial())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	db.Exec("DROP TABLE active_weights")

	if err := s.Rollback(rec.VersionID); err == nil {
		t.Fatal("expected error when active_weights table is missing")
	}
}

func TestListVersions_BadTimestampTolerated(t *testing.T) {
	s, db := corruptDB(t)
	_, err := db.Exec(
		`INSERT INTO weight_versions (version_id, parent_id, version, empathy, coherence, dissonance,
		 convergence, weights_at, created_at) VALUES ('odd', NULL, 0, 0.34, 0.33, 0.33, 1, 'yesterday', 'now')`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	versions, err := s.ListVersions(10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 || !versions[0].Weights.Timestamp.IsZero() {
		t.Fatalf("expected one record with zero timestamp, got %+v", versions)
	}
}

func TestNewStore_CorruptDB(t *testing.T) {
	// sql.Open succeeds but the first PRAGMA fails on a non-database file.
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corrupt.db")
	os.WriteFile(dbPath, []byte("not a sqlite database, just some text padding it out to a header"), 0644)

	if _, err := NewStore(dbPath); err == nil {
		t.Fatal("expected error for corrupted DB file")
	}
}

func TestCommitStepStoresScoresAndVersion(t *testing.T) {
	s := tempDB(t)
	u := mustUpdater(t)
	root, err := s.CreateInitial(weights.Initial())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}

	result := u.Update(root.Weights, weights.Scores{Empathy: 0.8, Coherence: 0.3, Dissonance: 0.1})
	rec, err := s.CommitStep(root.VersionID, result, 0.42, true)
	if err != nil {
		t.Fatalf("CommitStep: %v", err)
	}

	cur, err := s.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID != rec.VersionID || cur.Weights.Version != 1 {
		t.Fatalf("expected new version active, got %+v", cur)
	}
	scores, err := s.ListScores(-1)
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	if len(scores) != 1 || scores[0].VersionID != root.VersionID || scores[0].WeightedTotal != 0.42 {
		t.Fatalf("unexpected score rows: %+v", scores)
	}
}

func TestCommitStepWithoutAdvance(t *testing.T) {
	s := tempDB(t)
	u := mustUpdater(t)
	root, _ := s.CreateInitial(weights.Initial())

	result := u.Update(root.Weights, weights.Scores{Empathy: 0.8, Coherence: 0.3, Dissonance: 0.1})
	rec, err := s.CommitStep(root.VersionID, result, 0.42, false)
	if err != nil {
		t.Fatalf("CommitStep: %v", err)
	}
	if rec.VersionID != "" {
		t.Fatalf("expected no version record, got %+v", rec)
	}

	cur, _ := s.GetCurrent()
	if cur.VersionID != root.VersionID {
		t.Fatalf("active pointer moved to %s", cur.VersionID)
	}
	if scores, _ := s.ListScores(-1); len(scores) != 1 {
		t.Fatalf("expected one score row, got %d", len(scores))
	}
}

func TestCommitStepIsAtomic(t *testing.T) {
	s := tempDB(t)
	u := mustUpdater(t)
	root, _ := s.CreateInitial(weights.Initial())

	if _, err := s.DB().Exec(`CREATE TRIGGER reject_versions BEFORE INSERT ON weight_versions
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	result := u.Update(root.Weights, weights.Scores{Empathy: 0.8, Coherence: 0.3, Dissonance: 0.1})
	if _, err := s.CommitStep(root.VersionID, result, 0.42, true); err == nil {
		t.Fatal("expected insert to fail")
	}

	scores, err := s.ListScores(-1)
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	if len(scores) != 0 {
		t.Fatalf("score row survived a failed commit: %+v", scores)
	}
	cur, _ := s.GetCurrent()
	if cur.VersionID != root.VersionID {
		t.Fatalf("active pointer moved to %s", cur.VersionID)
	}
}

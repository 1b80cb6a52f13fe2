package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/dpd-weights/internal/logging"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// ErrNotFound is returned when a requested version does not exist.
var ErrNotFound = errors.New("version not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS weight_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	version       INTEGER NOT NULL,
	empathy       REAL NOT NULL,
	coherence     REAL NOT NULL,
	dissonance    REAL NOT NULL,
	convergence   REAL NOT NULL,
	weights_at    TEXT,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES weight_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_weight_versions_version ON weight_versions(version);

CREATE TABLE IF NOT EXISTS active_weights (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);

CREATE TABLE IF NOT EXISTS score_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id     TEXT NOT NULL,
	empathy        REAL NOT NULL,
	coherence      REAL NOT NULL,
	dissonance     REAL NOT NULL,
	weighted_total REAL NOT NULL,
	recorded_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);
`

// #endregion schema

// #region store-struct
// Store manages versioned weight vectors and score history in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps the per-connection foreign_keys pragma in force.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(logging.UpdateLogSchema); err != nil {
		return fmt.Errorf("migrate update log: %w", err)
	}
	return nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (logging, narrative).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-initial
// CreateInitial stores w as a root version and makes it active.
// A zero timestamp is replaced with the current time.
func (s *Store) CreateInitial(w weights.Weights) (WeightRecord, error) {
	now := time.Now().UTC()
	if w.Timestamp.IsZero() {
		w.Timestamp = now
	}
	rec := WeightRecord{
		VersionID: uuid.New().String(),
		Weights:   w,
		CreatedAt: now,
	}
	if err := s.Commit(rec); err != nil {
		return WeightRecord{}, err
	}
	return rec, nil
}

// #endregion create-initial

// #region get-current
// GetCurrent reads the active weight version.
func (s *Store) GetCurrent() (WeightRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_weights WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return WeightRecord{}, fmt.Errorf("get active: %w", ErrNotFound)
	}
	if err != nil {
		return WeightRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-current

// #region get-version
const selectColumns = `SELECT version_id, parent_id, version, empathy, coherence, dissonance,
	convergence, weights_at, created_at, metrics_json FROM weight_versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (WeightRecord, error) {
	var rec WeightRecord
	var parentID, weightsAt, metricsJSON sql.NullString
	var createdStr string

	err := row.Scan(&rec.VersionID, &parentID, &rec.Weights.Version,
		&rec.Weights.Empathy, &rec.Weights.Coherence, &rec.Weights.Dissonance,
		&rec.Weights.ConvergenceMetric, &weightsAt, &createdStr, &metricsJSON)
	if err != nil {
		return WeightRecord{}, err
	}

	rec.ParentID = parentID.String
	rec.MetricsJSON = metricsJSON.String
	if weightsAt.Valid {
		rec.Weights.Timestamp, _ = time.Parse(time.RFC3339Nano, weightsAt.String)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// GetVersion retrieves a specific weight version by ID.
func (s *Store) GetVersion(id string) (WeightRecord, error) {
	rec, err := scanRecord(s.db.QueryRow(selectColumns+` WHERE version_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return WeightRecord{}, fmt.Errorf("get version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return WeightRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// GetByNumber retrieves the most recently stored record carrying the given
// version number. After a rollback the same number can appear on more than
// one branch.
func (s *Store) GetByNumber(version int64) (WeightRecord, error) {
	rec, err := scanRecord(s.db.QueryRow(
		selectColumns+` WHERE version = ? ORDER BY rowid DESC LIMIT 1`, version))
	if errors.Is(err, sql.ErrNoRows) {
		return WeightRecord{}, fmt.Errorf("get version number %d: %w", version, ErrNotFound)
	}
	if err != nil {
		return WeightRecord{}, fmt.Errorf("get version number %d: %w", version, err)
	}
	return rec, nil
}

// #endregion get-version

// #region commit
// Commit inserts a new version and updates the active pointer atomically.
func (s *Store) Commit(rec WeightRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertVersion(tx *sql.Tx, rec WeightRecord) error {
	w := rec.Weights
	for _, v := range []float64{w.Empathy, w.Coherence, w.Dissonance, w.ConvergenceMetric} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("commit %s: non-finite weight component", rec.VersionID)
		}
	}

	var weightsAt interface{}
	if !w.Timestamp.IsZero() {
		weightsAt = w.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.Exec(
		`INSERT INTO weight_versions (version_id, parent_id, version, empathy, coherence, dissonance,
		 convergence, weights_at, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), w.Version, w.Empathy, w.Coherence, w.Dissonance,
		w.ConvergenceMetric, weightsAt, createdAt.Format(time.RFC3339Nano), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_weights (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("update active: %w", err)
	}
	return nil
}

// CommitResult persists the outcome of an update as a child of parentID
// and returns the stored record.
func (s *Store) CommitResult(parentID string, result weights.UpdateResult) (WeightRecord, error) {
	rec, err := resultRecord(parentID, result)
	if err != nil {
		return WeightRecord{}, err
	}
	if err := s.Commit(rec); err != nil {
		return WeightRecord{}, err
	}
	return rec, nil
}

// CommitStep records a cycle's scores under parentID and, when advance is
// set, stores result.New as its child and makes it active. Both writes share
// one transaction: on error nothing is stored. Without advance the returned
// record is the zero value.
func (s *Store) CommitStep(parentID string, result weights.UpdateResult, weightedTotal float64, advance bool) (WeightRecord, error) {
	var rec WeightRecord
	if advance {
		var err error
		if rec, err = resultRecord(parentID, result); err != nil {
			return WeightRecord{}, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return WeightRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertScores(tx, parentID, result.Scores, weightedTotal); err != nil {
		return WeightRecord{}, err
	}
	if advance {
		if err := insertVersion(tx, rec); err != nil {
			return WeightRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return WeightRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func resultRecord(parentID string, result weights.UpdateResult) (WeightRecord, error) {
	metrics, err := json.Marshal(UpdateMetrics{
		UpdateMagnitude: result.UpdateMagnitude,
		Delta:           result.Delta,
		Scores:          result.Scores,
		Adjustments:     result.Adjustments,
	})
	if err != nil {
		return WeightRecord{}, fmt.Errorf("marshal metrics: %w", err)
	}
	return WeightRecord{
		VersionID:   uuid.New().String(),
		ParentID:    parentID,
		Weights:     result.New,
		CreatedAt:   time.Now().UTC(),
		MetricsJSON: string(metrics),
	}, nil
}

// #endregion commit

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM weight_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("rollback to %s: %w", targetVersionID, ErrNotFound)
	}

	_, err = s.db.Exec(`UPDATE active_weights SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recently stored weight versions, newest first.
func (s *Store) ListVersions(limit int) ([]WeightRecord, error) {
	rows, err := s.db.Query(selectColumns+` ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []WeightRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers

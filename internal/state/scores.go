package state

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region record-scores
// RecordScores appends one cycle's scores, tied to the version they produced.
// A zero score timestamp is recorded as now.
func (s *Store) RecordScores(versionID string, sc weights.Scores, weightedTotal float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertScores(tx, versionID, sc, weightedTotal); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertScores(tx *sql.Tx, versionID string, sc weights.Scores, weightedTotal float64) error {
	at := sc.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := tx.Exec(
		`INSERT INTO score_history (version_id, empathy, coherence, dissonance, weighted_total, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		versionID, sc.Empathy, sc.Coherence, sc.Dissonance, weightedTotal,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record scores: %w", err)
	}
	return nil
}

// #endregion record-scores

// #region list-scores
// ListScores returns the most recent score rows, newest first.
func (s *Store) ListScores(limit int) ([]ScoreRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, version_id, empathy, coherence, dissonance, weighted_total, recorded_at
		 FROM score_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []ScoreRecord
	for rows.Next() {
		var r ScoreRecord
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.VersionID, &r.Scores.Empathy, &r.Scores.Coherence,
			&r.Scores.Dissonance, &r.WeightedTotal, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		r.Scores.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion list-scores

// #region decayed-average
// DecayedScoreAverage returns the mean of all recorded scores, each weighted
// by 2^(-age/halfLife) relative to now, and the number of rows considered.
// With no history it returns zero scores and n == 0.
func (s *Store) DecayedScoreAverage(halfLife time.Duration, now time.Time) (weights.Scores, int, error) {
	if halfLife <= 0 {
		return weights.Scores{}, 0, fmt.Errorf("decayed average: half-life must be positive")
	}

	rows, err := s.db.Query(`SELECT empathy, coherence, dissonance, recorded_at FROM score_history`)
	if err != nil {
		return weights.Scores{}, 0, fmt.Errorf("decayed average: %w", err)
	}
	defer rows.Close()

	var sumE, sumC, sumD, totalWeight float64
	var n int
	for rows.Next() {
		var e, c, d float64
		var recordedAt string
		if err := rows.Scan(&e, &c, &d, &recordedAt); err != nil {
			return weights.Scores{}, 0, fmt.Errorf("scan score: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			continue
		}
		age := now.Sub(at)
		if age < 0 {
			age = 0
		}
		w := math.Exp2(-float64(age) / float64(halfLife))
		sumE += e * w
		sumC += c * w
		sumD += d * w
		totalWeight += w
		n++
	}
	if err := rows.Err(); err != nil {
		return weights.Scores{}, 0, err
	}
	if n == 0 || totalWeight == 0 {
		return weights.Scores{Timestamp: now}, n, nil
	}

	return weights.Scores{
		Empathy:    sumE / totalWeight,
		Coherence:  sumC / totalWeight,
		Dissonance: sumD / totalWeight,
		Timestamp:  now,
	}, n, nil
}

// #endregion decayed-average

package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// UpdateLogSchema creates the update_log table. The state store applies it
// with the rest of its schema.
const UpdateLogSchema = `
CREATE TABLE IF NOT EXISTS update_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id     TEXT NOT NULL,
    kind         TEXT NOT NULL,
    version      INTEGER NOT NULL,
    magnitude    REAL NOT NULL DEFAULT 0,
    convergence  REAL NOT NULL DEFAULT 0,
    adjustments  TEXT,
    result_json  TEXT,
    text         TEXT,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_update_log_version ON update_log(version);
`

// #region log-update
// LogUpdate writes an entry to the update_log table.
func LogUpdate(db *sql.DB, entry UpdateEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO update_log (event_id, kind, version, magnitude, convergence, adjustments, result_json, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID,
		entry.Kind,
		entry.Version,
		entry.Magnitude,
		entry.Convergence,
		nullIfEmpty(entry.Adjustments),
		nullIfEmpty(entry.ResultJSON),
		nullIfEmpty(entry.Text),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log update: %w", err)
	}
	return nil
}

// #endregion log-update

// #region list-updates
// ListUpdates returns the most recent entries, newest first.
func ListUpdates(db *sql.DB, limit int) ([]UpdateEntry, error) {
	rows, err := db.Query(
		`SELECT event_id, kind, version, magnitude, convergence, adjustments, result_json, text, created_at
		 FROM update_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	var out []UpdateEntry
	for rows.Next() {
		var e UpdateEntry
		var adjustments, resultJSON, text sql.NullString
		var createdAt string
		if err := rows.Scan(&e.EventID, &e.Kind, &e.Version, &e.Magnitude, &e.Convergence,
			&adjustments, &resultJSON, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		e.Adjustments = adjustments.String
		e.ResultJSON = resultJSON.String
		e.Text = text.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-updates

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers

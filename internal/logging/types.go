package logging

import "time"

// #region update-entry
// UpdateEntry is a single row in the update_log table.
type UpdateEntry struct {
	EventID     string
	Kind        string // "weights.updated" | "weights.interpretation"
	Version     int64
	Magnitude   float64
	Convergence float64
	Adjustments string // newline-joined input clamps
	ResultJSON  string
	Text        string
	CreatedAt   time.Time
}

// #endregion update-entry

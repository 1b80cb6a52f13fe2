package state

import (
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #region weight-record
// WeightRecord is a persisted snapshot of the weight vector.
type WeightRecord struct {
	VersionID   string
	ParentID    string
	Weights     weights.Weights
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion weight-record

// #region update-metrics
// UpdateMetrics is stored as metrics_json alongside a committed version.
type UpdateMetrics struct {
	UpdateMagnitude float64        `json:"update_magnitude"`
	Delta           weights.Delta  `json:"per_component_delta"`
	Scores          weights.Scores `json:"scores"`
	Adjustments     []string       `json:"adjustments,omitempty"`
}

// #endregion update-metrics

// #region score-record
// ScoreRecord is one row of score_history.
type ScoreRecord struct {
	ID            int64
	VersionID     string
	Scores        weights.Scores
	WeightedTotal float64
}

// #endregion score-record

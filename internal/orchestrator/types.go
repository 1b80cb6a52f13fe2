package orchestrator

// #region imports
import (
	"github.com/danielpatrickdp/dpd-weights/internal/stage"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region step-result

// StepResult is the outcome of one scored cycle.
type StepResult struct {
	Update weights.UpdateResult `json:"update"`

	// ParentID is the version the cycle was scored against. Scores are
	// recorded under it.
	ParentID string `json:"parent_id"`

	// VersionID is the committed child version, or ParentID when frozen.
	VersionID string `json:"version_id"`

	// WeightedTotal is Σ previous_weight_i * score_i.
	WeightedTotal float64 `json:"weighted_total"`

	Committed bool `json:"committed"`
}

// #endregion

// #region status

// Status describes the active weights and how settled the stream is.
type Status struct {
	VersionID   string                  `json:"version_id"`
	Weights     weights.Weights         `json:"weights"`
	Convergence stage.ConvergenceStatus `json:"convergence"`
	HistoryLen  int                     `json:"history_len"`
	Frozen      bool                    `json:"frozen"`
}

// #endregion

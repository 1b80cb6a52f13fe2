package mcp

import (
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/stage"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// UpdateInput defines the input for the dpd_update tool.
type UpdateInput struct {
	Empathy    float64 `json:"empathy" jsonschema:"Empathy score for this cycle, 0 to 1"`
	Coherence  float64 `json:"coherence" jsonschema:"Coherence score for this cycle, 0 to 1"`
	Dissonance float64 `json:"dissonance" jsonschema:"Dissonance score for this cycle, 0 to 1"`
}

// UpdateOutput defines the output for the dpd_update tool.
type UpdateOutput struct {
	VersionID         string          `json:"version_id" jsonschema:"Stored version the stream now points at"`
	Weights           weights.Weights `json:"weights" jsonschema:"Weights after the update"`
	Delta             weights.Delta   `json:"delta" jsonschema:"Per-component change"`
	UpdateMagnitude   float64         `json:"update_magnitude" jsonschema:"L1 distance moved this cycle"`
	ConvergenceMetric float64         `json:"convergence_metric" jsonschema:"Smoothed update magnitude"`
	WeightedTotal     float64         `json:"weighted_total" jsonschema:"Scores weighted by the previous vector"`
	Adjustments       []string        `json:"adjustments,omitempty" jsonschema:"Input clamps applied before updating"`
	Committed         bool            `json:"committed" jsonschema:"False when the stream is frozen"`
}

// StatusInput defines the input for the dpd_status tool.
type StatusInput struct{}

// StatusOutput defines the output for the dpd_status tool.
type StatusOutput struct {
	VersionID   string                  `json:"version_id" jsonschema:"Active version"`
	Weights     weights.Weights         `json:"weights" jsonschema:"Active weights"`
	Convergence stage.ConvergenceStatus `json:"convergence" jsonschema:"Convergence of the most recent update"`
	HistoryLen  int                     `json:"history_len" jsonschema:"Updates retained in memory"`
	Frozen      bool                    `json:"frozen" jsonschema:"Whether commits are disabled"`
	Narrative   string                  `json:"narrative,omitempty" jsonschema:"Latest interpretation text"`
}

// HistoryInput defines the input for the dpd_history tool.
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum versions to return (default 10)"`
}

// VersionItem is one stored version in dpd_history output.
type VersionItem struct {
	VersionID string          `json:"version_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Weights   weights.Weights `json:"weights"`
	CreatedAt time.Time       `json:"created_at"`
}

// HistoryOutput defines the output for the dpd_history tool.
type HistoryOutput struct {
	Versions []VersionItem `json:"versions" jsonschema:"Stored versions, newest first"`
	Count    int           `json:"count" jsonschema:"Number of versions returned"`
}

// CurrentInput defines the input for the dpd_current tool.
type CurrentInput struct{}

// CurrentOutput defines the output for the dpd_current tool.
type CurrentOutput struct {
	VersionID string          `json:"version_id" jsonschema:"Active version"`
	Weights   weights.Weights `json:"weights" jsonschema:"Active weights"`
}

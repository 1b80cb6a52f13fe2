package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/dpd-weights/internal/events"
)

// Recorder writes every stage event to update_log.
type Recorder struct {
	db *sql.DB
}

// NewRecorder returns a Recorder backed by db. The update_log table must exist.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal update result: %w", err)
	}
	return LogUpdate(r.db, UpdateEntry{
		EventID:     ev.ID,
		Kind:        string(ev.Kind),
		Version:     ev.Version,
		Magnitude:   ev.Result.UpdateMagnitude,
		Convergence: ev.Result.ConvergenceMetric,
		Adjustments: strings.Join(ev.Result.Adjustments, "\n"),
		ResultJSON:  string(data),
		Text:        ev.Text,
		CreatedAt:   ev.CreatedAt,
	})
}

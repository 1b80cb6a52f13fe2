// Package orchestrator drives one persisted weight stream: it loads the
// active weights, runs the stage, commits the child version and records
// the cycle's scores.
package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/logging"
	"github.com/danielpatrickdp/dpd-weights/internal/narrative"
	"github.com/danielpatrickdp/dpd-weights/internal/stage"
	"github.com/danielpatrickdp/dpd-weights/internal/state"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region orchestrator-struct

// Orchestrator serializes updates of a single weight stream. All methods are
// safe for concurrent use.
type Orchestrator struct {
	store      *state.Store
	stage      *stage.Stage
	narratives *narrative.Store
	logger     *slog.Logger
	frozen     bool

	mu      sync.Mutex
	closers []func() error
}

// #endregion

// #region constructor

// NewOrchestrator wires an orchestrator over an open store and stage.
// narratives may be nil. A frozen orchestrator computes and publishes
// updates but never moves the active pointer.
func NewOrchestrator(store *state.Store, stg *stage.Stage, narratives *narrative.Store, logger *slog.Logger, frozen bool) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		stage:      stg,
		narratives: narratives,
		logger:     logger.With("component", "orchestrator"),
		frozen:     frozen,
	}
}

// #endregion

// #region frozen

// Frozen reports whether commits are disabled.
func (o *Orchestrator) Frozen() bool {
	return o.frozen
}

// #endregion

// #region step

// Step runs one cycle against the active weights.
func (o *Orchestrator) Step(ctx context.Context, scores weights.Scores) (StepResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cur, err := o.store.GetCurrent()
	if err != nil {
		return StepResult{}, fmt.Errorf("load current weights: %w", err)
	}
	if scores.Timestamp.IsZero() {
		scores.Timestamp = time.Now().UTC()
	}

	result := o.stage.Compute(cur.Weights, scores)
	out := StepResult{
		Update:        result,
		ParentID:      cur.VersionID,
		VersionID:     cur.VersionID,
		WeightedTotal: result.Scores.WeightedTotal(result.Previous),
	}

	// Scores and the child version land together or not at all; history and
	// events only see committed cycles.
	rec, err := o.store.CommitStep(cur.VersionID, result, out.WeightedTotal, !o.frozen)
	if err != nil {
		return StepResult{}, fmt.Errorf("commit step: %w", err)
	}
	if o.frozen {
		o.logger.Debug("frozen, skipping commit", "version", result.New.Version)
	} else {
		out.VersionID = rec.VersionID
		out.Committed = true
	}

	o.stage.Accept(ctx, result)
	o.stage.Interpret(ctx, result)
	return out, nil
}

// #endregion

// #region queries

// Current returns the active weight record.
func (o *Orchestrator) Current() (state.WeightRecord, error) {
	return o.store.GetCurrent()
}

// Status reports the active weights and convergence. Before the first update
// of this process or since the last rollback, convergence is derived from the
// stored metric.
func (o *Orchestrator) Status() (Status, error) {
	cur, err := o.store.GetCurrent()
	if err != nil {
		return Status{}, err
	}
	history := o.stage.UpdateHistory()
	st := Status{
		VersionID:  cur.VersionID,
		Weights:    cur.Weights,
		HistoryLen: len(history),
		Frozen:     o.frozen,
	}
	if len(history) > 0 {
		st.Convergence = o.stage.ConvergenceStatus()
	} else if cur.Weights.Version > 0 {
		st.Convergence = stage.ConvergenceStatus{
			IsConverging:      cur.Weights.ConvergenceMetric < o.stage.Config().ConvergenceThreshold,
			ConvergenceMetric: cur.Weights.ConvergenceMetric,
		}
	}
	return st, nil
}

// History returns the update results retained in memory, oldest first.
func (o *Orchestrator) History() []weights.UpdateResult {
	return o.stage.UpdateHistory()
}

// Versions returns up to limit stored versions, newest first.
func (o *Orchestrator) Versions(limit int) ([]state.WeightRecord, error) {
	return o.store.ListVersions(limit)
}

// Scores returns up to limit recorded score rows, newest first.
func (o *Orchestrator) Scores(limit int) ([]state.ScoreRecord, error) {
	return o.store.ListScores(limit)
}

// DecayedScores returns the half-life weighted mean of recorded scores.
func (o *Orchestrator) DecayedScores(halfLife time.Duration) (weights.Scores, int, error) {
	return o.store.DecayedScoreAverage(halfLife, time.Now().UTC())
}

// Updates returns up to limit update_log rows, newest first.
func (o *Orchestrator) Updates(limit int) ([]logging.UpdateEntry, error) {
	return logging.ListUpdates(o.store.DB(), limit)
}

// LatestNarrative returns the newest stored interpretation, or nil.
func (o *Orchestrator) LatestNarrative() (*narrative.Narrative, error) {
	if o.narratives == nil {
		return nil, nil
	}
	return o.narratives.Latest()
}

// #endregion

// #region rollback

// Rollback makes the newest stored vector with the given version number
// active again. Subsequent steps branch from it.
func (o *Orchestrator) Rollback(version int64) (state.WeightRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.store.GetByNumber(version)
	if err != nil {
		return state.WeightRecord{}, fmt.Errorf("find version %d: %w", version, err)
	}
	if err := o.store.Rollback(rec.VersionID); err != nil {
		return state.WeightRecord{}, err
	}
	// Retained results describe the abandoned branch.
	o.stage.ResetHistory()
	o.logger.Info("rolled back", "version", version, "version_id", rec.VersionID)
	return rec, nil
}

// #endregion

// #region lifecycle

// Wait blocks until background interpretations have been stored.
func (o *Orchestrator) Wait() {
	o.stage.Wait()
}

// Close waits for interpretations, then releases everything Open acquired.
func (o *Orchestrator) Close() error {
	o.stage.Wait()
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

// #endregion

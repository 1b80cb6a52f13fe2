// Package stage wraps the weight updater with a bounded update history,
// convergence reporting, event publication and asynchronous interpretation.
package stage

// #region imports
import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/events"
	"github.com/danielpatrickdp/dpd-weights/internal/interpret"
	"github.com/danielpatrickdp/dpd-weights/internal/logging"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region types

const publishTimeout = 5 * time.Second

// ConvergenceStatus summarizes the most recent update.
type ConvergenceStatus struct {
	IsConverging      bool    `json:"is_converging"`
	RecentMagnitude   float64 `json:"recent_magnitude"`
	ConvergenceMetric float64 `json:"convergence_metric"`
}

// Stage runs weight updates for a single stream. Callers must not run two
// updates of the same stream concurrently; history reads are safe at any time.
type Stage struct {
	updater     *weights.Updater
	cfg         Config
	interpreter interpret.Interpreter
	publisher   events.Publisher
	checker     *eval.EvalHarness
	logger      *slog.Logger

	mu      sync.Mutex
	history *deque.Deque[weights.UpdateResult]

	inflight sync.WaitGroup
}

// #endregion

// #region constructor

// New builds a stage around updater.
func New(updater *weights.Updater, opts ...Option) (*Stage, error) {
	if updater == nil {
		return nil, errors.New("stage: nil updater")
	}
	s := &Stage{
		updater: updater,
		cfg:     DefaultConfig(),
		history: deque.New[weights.UpdateResult](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.checker == nil {
		s.checker = eval.NewEvalHarness(eval.ConfigFromParams(updater.Params()))
	}
	s.logger = s.logger.With("component", "stage")
	return s, nil
}

// #endregion

// #region run

// Run computes the next weights and returns them. When an interpreter is
// configured, the update is interpreted on a background goroutine; its
// failures are logged and never reach the caller.
func (s *Stage) Run(ctx context.Context, current weights.Weights, scores weights.Scores) weights.Weights {
	result := s.RunWithDetails(ctx, current, scores)
	s.Interpret(ctx, result)
	return result.New
}

// RunWithDetails computes the next weights, records them and returns the
// full result. No interpretation is requested.
func (s *Stage) RunWithDetails(ctx context.Context, current weights.Weights, scores weights.Scores) weights.UpdateResult {
	result := s.Compute(current, scores)
	s.Accept(ctx, result)
	return result
}

// Compute runs the updater and its invariant check without touching history
// or publishing anything. Callers that must persist a result first follow a
// successful write with Accept.
func (s *Stage) Compute(current weights.Weights, scores weights.Scores) weights.UpdateResult {
	result := s.updater.Update(current, scores)

	for _, adj := range result.Adjustments {
		s.logger.Warn("input adjusted", "version", result.New.Version, "adjustment", adj)
	}
	if check := s.checker.Run(result.New); !check.Passed {
		s.logger.Error("weight invariant violated", "version", result.New.Version, "reason", check.Reason)
	}
	return result
}

// Accept appends result to the history and publishes the update event.
func (s *Stage) Accept(ctx context.Context, result weights.UpdateResult) {
	s.record(result)

	s.logger.Info("weights updated",
		"version", result.New.Version,
		"empathy", result.New.Empathy,
		"coherence", result.New.Coherence,
		"dissonance", result.New.Dissonance,
		"magnitude", result.UpdateMagnitude,
		"convergence", result.ConvergenceMetric,
	)
	s.logger.Log(ctx, logging.LevelTrace, "update result", "result", result)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.Updated(result)); err != nil {
			s.logger.Warn("publish update event failed", "version", result.New.Version, "error", err)
		}
	}
}

// #endregion

// #region interpret

// Interpret requests a background interpretation of result. It is a no-op
// without an interpreter. Callers that persist a result before narrating it
// pair this with Compute and Accept.
func (s *Stage) Interpret(ctx context.Context, result weights.UpdateResult) {
	if s.interpreter == nil {
		return
	}
	s.inflight.Add(1)
	go s.interpret(ctx, result)
}

func (s *Stage) interpret(parent context.Context, result weights.UpdateResult) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("interpreter panicked", "version", result.New.Version, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.InterpretTimeout)
	defer cancel()

	s.logger.Log(ctx, logging.LevelTrace, "interpretation prompt", "prompt", interpret.Prompt(result))

	text, err := s.interpreter.Interpret(ctx, result)
	if err != nil {
		s.logger.Warn("interpretation failed", "version", result.New.Version, "error", err)
		return
	}
	s.logger.Debug("interpretation ready", "version", result.New.Version, "text", text)

	if s.publisher != nil {
		// The interpretation may have used the whole budget.
		pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(parent), publishTimeout)
		defer pubCancel()
		if err := s.publisher.Publish(pubCtx, events.Interpretation(result, text)); err != nil {
			s.logger.Warn("publish interpretation failed", "version", result.New.Version, "error", err)
		}
	}
}

// Wait blocks until every background interpretation started so far has
// finished.
func (s *Stage) Wait() {
	s.inflight.Wait()
}

// #endregion

// #region history

// ResetHistory drops every retained result. The orchestrator calls it when
// the active vector moves to another branch.
func (s *Stage) ResetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Clear()
}

// Config returns the settings the stage was built with.
func (s *Stage) Config() Config {
	return s.cfg
}

func (s *Stage) record(result weights.UpdateResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.PushBack(result)
	for s.history.Len() > s.cfg.HistoryCapacity {
		s.history.PopFront()
	}
}

// UpdateHistory returns a copy of the retained results, oldest first.
func (s *Stage) UpdateHistory() []weights.UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]weights.UpdateResult, s.history.Len())
	for i := range out {
		out[i] = s.history.At(i)
		out[i].Adjustments = slices.Clone(out[i].Adjustments)
	}
	return out
}

// ConvergenceStatus reports on the most recent update. With no history the
// stream is not converging.
func (s *Stage) ConvergenceStatus() ConvergenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history.Len() == 0 {
		return ConvergenceStatus{}
	}
	last := s.history.Back()
	return ConvergenceStatus{
		IsConverging:      last.ConvergenceMetric < s.cfg.ConvergenceThreshold,
		RecentMagnitude:   last.UpdateMagnitude,
		ConvergenceMetric: last.ConvergenceMetric,
	}
}

// #endregion

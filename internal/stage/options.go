package stage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/eval"
	"github.com/danielpatrickdp/dpd-weights/internal/events"
	"github.com/danielpatrickdp/dpd-weights/internal/interpret"
)

// #region config
// Config tunes the stage around the updater.
type Config struct {
	HistoryCapacity      int           // retained update results (default 50)
	ConvergenceThreshold float64       // metric below which the stream counts as converging (default 0.1)
	InterpretTimeout     time.Duration // bound on one background interpretation (default 30s)
}

// DefaultConfig returns the production stage settings.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:      50,
		ConvergenceThreshold: 0.1,
		InterpretTimeout:     30 * time.Second,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("stage: history capacity %d must be at least 1", c.HistoryCapacity)
	}
	if !(c.ConvergenceThreshold > 0) {
		return fmt.Errorf("stage: convergence threshold %g must be positive", c.ConvergenceThreshold)
	}
	if c.InterpretTimeout <= 0 {
		return fmt.Errorf("stage: interpret timeout %s must be positive", c.InterpretTimeout)
	}
	return nil
}

// #endregion config

// #region options
// Option configures a Stage.
type Option func(*Stage)

// WithConfig replaces the default stage settings.
func WithConfig(cfg Config) Option {
	return func(s *Stage) { s.cfg = cfg }
}

// WithInterpreter enables background interpretation on Run.
func WithInterpreter(i interpret.Interpreter) Option {
	return func(s *Stage) { s.interpreter = i }
}

// WithPublisher sets the sink for update and interpretation events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Stage) { s.publisher = p }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stage) { s.logger = l }
}

// WithEvalConfig overrides the invariant bounds checked after each update.
func WithEvalConfig(cfg eval.EvalConfig) Option {
	return func(s *Stage) { s.checker = eval.NewEvalHarness(cfg) }
}

// #endregion options

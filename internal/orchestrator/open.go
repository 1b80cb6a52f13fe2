package orchestrator

// #region imports
import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/danielpatrickdp/dpd-weights/internal/config"
	"github.com/danielpatrickdp/dpd-weights/internal/events"
	"github.com/danielpatrickdp/dpd-weights/internal/interpret"
	"github.com/danielpatrickdp/dpd-weights/internal/logging"
	"github.com/danielpatrickdp/dpd-weights/internal/narrative"
	"github.com/danielpatrickdp/dpd-weights/internal/stage"
	"github.com/danielpatrickdp/dpd-weights/internal/state"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region open

// Open builds a fully wired orchestrator from cfg: the SQLite store, the
// interpreter, the event sinks and the stage. The store is seeded with the
// initial weights on first use.
// Kill switch: set DPD_FROZEN=true to stop committing updates.
func Open(cfg *config.Config, logger *slog.Logger) (o *Orchestrator, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers = append(closers, store.Close)

	if _, err := store.GetCurrent(); errors.Is(err, state.ErrNotFound) {
		logger.Info("no active weights, seeding initial vector", "db", cfg.DBPath)
		if _, err := store.CreateInitial(weights.Initial()); err != nil {
			return nil, fmt.Errorf("seed initial weights: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load current weights: %w", err)
	}

	updater, err := weights.NewUpdater(cfg.Params())
	if err != nil {
		return nil, err
	}

	interp, err := interpret.New(cfg.InterpretConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("build interpreter: %w", err)
	}
	closers = append(closers, func() error { return interpret.Close(interp) })

	narratives, err := narrative.NewStore(store.DB())
	if err != nil {
		return nil, fmt.Errorf("open narratives: %w", err)
	}

	publishers := events.Multi{logging.NewRecorder(store.DB()), narratives}
	if cfg.Events.NATSURL != "" {
		np, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		closers = append(closers, np.Close)
		publishers = append(publishers, np)
	}

	stg, err := stage.New(updater,
		stage.WithConfig(cfg.StageConfig()),
		stage.WithInterpreter(interp),
		stage.WithPublisher(publishers),
		stage.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	o = NewOrchestrator(store, stg, narratives, logger, os.Getenv("DPD_FROZEN") == "true")
	o.closers = closers
	logger.Debug("orchestrator ready",
		"db", cfg.DBPath,
		"interpreter", cfg.Interpreter.String(),
		"nats", cfg.Events.NATSURL != "",
		"frozen", o.frozen,
	)
	return o, nil
}

// #endregion

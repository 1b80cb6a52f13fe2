package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/dpd-weights/internal/config"
	"github.com/danielpatrickdp/dpd-weights/internal/logging"
	"github.com/danielpatrickdp/dpd-weights/internal/orchestrator"
)

// loadConfig resolves the config file, then applies --db and --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes operational logs to the command's stderr so stdout stays
// parseable.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openOrchestrator loads config and opens the weight stream it names.
func openOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	orch, err := orchestrator.Open(cfg, newLogger(cmd, cfg))
	if err != nil {
		return nil, nil, err
	}
	return orch, cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

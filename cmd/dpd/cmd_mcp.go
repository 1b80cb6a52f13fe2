package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/dpd-weights/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the weight stream to MCP clients over stdio",
		Long: `Start an MCP server on stdin/stdout exposing the tools dpd_update,
dpd_status, dpd_history and dpd_current. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cfg, err := openOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer orch.Close()

			logger := newLogger(cmd, cfg)
			logger.Info("mcp server starting", "db", cfg.DBPath, "version", version)

			server := mcp.NewServer(&mcp.Config{Name: "dpd", Version: version}, orch)
			if err := server.Run(cmd.Context()); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}

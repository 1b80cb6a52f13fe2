// Package mcp exposes a weight stream to MCP clients over stdio.
package mcp

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danielpatrickdp/dpd-weights/internal/orchestrator"
)

// Server wraps the MCP SDK server around an orchestrator.
type Server struct {
	server *sdk.Server
	orch   *orchestrator.Orchestrator
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "dpd")
	Version string // Server version
}

// NewServer creates an MCP server with the dpd tools registered. The caller
// keeps ownership of orch.
func NewServer(cfg *Config, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		server: sdk.NewServer(&sdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		orch: orch,
	}
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects, ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

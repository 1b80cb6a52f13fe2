package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/dpd-weights/internal/interpret"
)

func newInterpreterServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpreter-serve",
		Short: "Serve the configured interpreter over gRPC",
		Long: `Expose the configured interpreter as the dpd.v1.Interpreter gRPC service,
so several engines can share one language-model backend by pointing
interpreter.provider=grpc at this address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Interpreter.Provider == "grpc" {
				return fmt.Errorf("interpreter-serve needs a local provider, not grpc")
			}
			logger := newLogger(cmd, cfg)

			inner, err := interpret.New(cfg.InterpretConfig(), logger)
			if err != nil {
				return err
			}
			defer interpret.Close(inner)

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}

			srv := grpc.NewServer()
			interpret.RegisterInterpreterServer(srv, interpret.NewLocalServer(inner))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-sigChan:
				case <-cmd.Context().Done():
				case <-done:
					return
				}
				srv.GracefulStop()
			}()

			logger.Info("interpreter server listening", "addr", lis.Addr().String(), "provider", cfg.Interpreter.Provider)
			if err := srv.Serve(lis); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "localhost:50051", "Listen address")
	return cmd
}

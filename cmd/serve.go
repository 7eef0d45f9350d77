package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/adaptivequiz/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			s, err := server.Init(ctx, c)
			if err != nil {
				return err
			}

			errc := make(chan error, 1)
			go func() { errc <- s.Start(context.WithoutCancel(ctx)) }()

			select {
			case <-ctx.Done():
			case err = <-errc:
				slog.ErrorContext(ctx, "server: stopped with error", "error", err)
			}

			s.Shutdown()
			return err
		},
	}
}

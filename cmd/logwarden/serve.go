package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"logwarden/internal/api"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored events over HTTP",
		Long: `Serve the read-only API:

  GET /api/v1/logs?limit=N   newest rows first (default storage.fetch_limit)
  GET /healthz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.API.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.startMetrics(ctx)

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			return api.NewServer(store, addr, a.cfg.Storage.FetchLimit, a.logger).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: api.addr)")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"logwarden/internal/api"
	"logwarden/internal/config"
	"logwarden/internal/ingest"
	"logwarden/internal/logging"
	"logwarden/internal/metrics"
	"logwarden/internal/notify"
	"logwarden/internal/pipeline"
)

func newFollowCmd(a *app) *cobra.Command {
	var (
		fromStart bool
		poll      bool
		serve     bool
	)

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Tail the configured logs and the journal until interrupted",
		Long: `Tail every configured file (surviving rotation) and, with
sources.journald, the sshd entries of the systemd journal. Records are
written when a batch fills or storage.flush_interval passes.

SIGHUP reloads the configuration file and applies the new notify
allowlist. Other changes need a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireSources(); err != nil {
				return err
			}

			var opts []ingest.TailOption
			if fromStart {
				opts = append(opts, ingest.FromStart())
			}
			if poll {
				opts = append(opts, ingest.WithPolling())
			}
			return a.follow(cmd, serve, opts...)
		},
	}

	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read existing file contents before following")
	cmd.Flags().BoolVar(&poll, "poll", false, "poll files instead of using inotify")
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the read API on api.addr")
	return cmd
}

func (a *app) follow(cmd *cobra.Command, serve bool, opts ...ingest.TailOption) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.startMetrics(ctx)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store, a.logger)

	broker, release, err := a.buildBroker()
	if err != nil {
		return err
	}
	defer release()

	if serve {
		srv := api.NewServer(store, a.cfg.API.Addr, a.cfg.Storage.FetchLimit, a.logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				a.logger.Error("api server failed", logging.Error(err))
			}
		}()
	}

	var (
		inputs    []<-chan ingest.LogLine
		ingesters []ingest.Ingester
	)
	opts = append(opts, ingest.WithTailLogger(a.logger))
	for _, src := range a.sources() {
		t := ingest.NewFileTailer(src.Path, src.Kind, opts...)
		ch, err := t.Start(ctx)
		if err != nil {
			a.logger.Warn("failed to start tailer", logging.Path(src.Path), logging.Error(err))
			continue
		}
		inputs = append(inputs, ch)
		ingesters = append(ingesters, t)
	}
	if a.cfg.Sources.Journald {
		j := ingest.NewJournalReader(a.logger)
		ch, err := j.Start(ctx)
		if err != nil {
			a.logger.Warn("failed to start journald reader", logging.Error(err))
		} else {
			inputs = append(inputs, ch)
			ingesters = append(ingesters, j)
		}
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no input could be started")
	}
	defer func() {
		for _, in := range ingesters {
			in.Stop()
		}
	}()

	go a.reloadOnHangup(ctx, broker)

	p := a.newPipeline(store, broker)
	a.logger.Info("following", slog.Int("inputs", len(inputs)))
	counts := p.Follow(ctx, pipeline.Merge(ctx, inputs...))

	a.logger.Info("shutdown complete",
		slog.Int("lines", counts.Lines),
		slog.Int("flagged", counts.Flagged),
		slog.Int("stored", counts.Stored),
		slog.Int("store_failures", counts.StoreFailures),
	)
	return nil
}

// reloadOnHangup re-reads the configuration on SIGHUP and swaps the allowlist
func (a *app) reloadOnHangup(ctx context.Context, broker *notify.Broker) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		a.logger.Info("SIGHUP received, reloading configuration")
		cfg, err := config.Load(a.cfgFile)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			a.logger.Error("failed to reload config", logging.Error(err))
			continue
		}
		al, err := notify.ParseAllowlist(cfg.Notify.Allowlist)
		if err != nil {
			a.logger.Error("invalid allowlist, keeping the previous one", logging.Error(err))
			continue
		}
		broker.UpdateAllowlist(al)
		metrics.ConfigReloads.Inc()
		a.logger.Info("reload successful", logging.Count(len(cfg.Notify.Allowlist)))
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"logwarden/internal/parser"
	"logwarden/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		webPaths  []string
		authPaths []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the configured log files once and exit",
		Long: `Read every configured web access and auth log to the end, flag
brute-force origins and store all parsed events.

With detector.use_event_time the files are merged by timestamp and
attempts are bucketed by the time they were logged, which is what you
want when replaying old logs.

Examples:
  logwarden run
  logwarden run --auth /var/log/auth.log --web /var/log/nginx/access.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Sources.WebAccess = append(a.cfg.Sources.WebAccess, webPaths...)
			a.cfg.Sources.AuthLog = append(a.cfg.Sources.AuthLog, authPaths...)
			if err := a.cfg.RequireSources(); err != nil {
				return err
			}
			return a.run(cmd, a.sources())
		},
	}

	cmd.Flags().StringSliceVar(&webPaths, "web", nil, "additional web access log path")
	cmd.Flags().StringSliceVar(&authPaths, "auth", nil, "additional auth log path")
	return cmd
}

func (a *app) run(cmd *cobra.Command, sources []parser.Source) error {
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

	p := a.newPipeline(store, broker)

	var sum pipeline.Summary
	if a.cfg.Detector.UseEventTime {
		sum = p.Replay(ctx, sources)
	} else {
		sum = p.Run(ctx, sources)
	}
	printSummary(cmd, sum)
	return runErr(ctx, sum)
}

// runErr reports source failures; an interrupted run is not an error
func runErr(ctx context.Context, sum pipeline.Summary) error {
	if ctx.Err() != nil {
		return nil
	}
	return sum.Err()
}

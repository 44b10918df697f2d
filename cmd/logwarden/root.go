package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"logwarden/internal/audit"
	"logwarden/internal/config"
	"logwarden/internal/detect"
	"logwarden/internal/logging"
	"logwarden/internal/metrics"
	"logwarden/internal/notify"
	"logwarden/internal/parser"
	"logwarden/internal/pipeline"
	"logwarden/internal/storage"
	"logwarden/internal/types"
)

// app carries what every subcommand needs once the configuration is loaded
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "logwarden",
		Short: "Log ingestion and brute-force detection",
		Long: `logwarden parses web access logs and sshd auth logs, flags origins
that fail to log in too often, and stores every event in ClickHouse,
SQLite or memory.

Configuration cascade (priority order):
  1. LOGWARDEN_* environment variables (NGINX_LOG_PATH, AUTH_LOG_PATH
     and CLICKHOUSE_URL are honored too)
  2. --config file, or ./logwarden.yaml, or /etc/logwarden/logwarden.yaml
  3. Built-in defaults`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./logwarden.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newFollowCmd(a),
		newServeCmd(a),
		newSeedCmd(a),
		newSchemaCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, a.cfg.StoreConfig(), a.logger)
}

// sources lists the configured files with their kinds, web access first
func (a *app) sources() []parser.Source {
	var out []parser.Source
	for _, p := range a.cfg.Sources.WebAccess {
		out = append(out, parser.Source{Kind: types.SourceWebAccess, Path: p})
	}
	for _, p := range a.cfg.Sources.AuthLog {
		out = append(out, parser.Source{Kind: types.SourceAuthLog, Path: p})
	}
	return out
}

// startMetrics serves /metrics in the background when metrics.addr is set
func (a *app) startMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		a.logger.Info("metrics listening", slog.String("addr", addr))
		if err := metrics.StartServer(ctx, addr); err != nil {
			a.logger.Error("metrics server failed", logging.Error(err))
		}
	}()
}

// buildBroker wires the configured notifiers. The returned func releases
// their connections.
func (a *app) buildBroker() (*notify.Broker, func(), error) {
	n := a.cfg.Notify
	allowlist, err := notify.ParseAllowlist(n.Allowlist)
	if err != nil {
		return nil, nil, err
	}

	var (
		notifiers []notify.Notifier
		closers   []func() error
	)
	if n.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(n.NATSURL, n.Subject, a.logger)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, pub)
		closers = append(closers, pub.Close)
	}
	if n.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(n.WebhookURL))
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				a.logger.Warn("notifier close failed", logging.Error(err))
			}
		}
	}
	return notify.NewBroker(allowlist, a.logger, notifiers...), cleanup, nil
}

// newPipeline assembles detector, store, audit trail and alerting
func (a *app) newPipeline(store storage.Store, broker *notify.Broker) *pipeline.Pipeline {
	s := a.cfg.Storage
	opts := []pipeline.Option{
		pipeline.WithBatchSize(s.BatchSize),
		pipeline.WithRetries(s.RetryAttempts, pipeline.DefaultRetryBackoff),
		pipeline.WithFlushInterval(s.FlushInterval),
		pipeline.WithEventTime(a.cfg.Detector.UseEventTime),
		pipeline.WithDispatcher(broker),
		pipeline.WithLogger(a.logger),
	}
	if a.cfg.Audit.Path != "" {
		opts = append(opts, pipeline.WithAuditor(audit.NewLogger(a.cfg.Audit.Path)))
	}

	detector := detect.New(a.cfg.DetectConfig(), detect.WithLogger(a.logger))
	return pipeline.New(detector, store, opts...)
}

func closeStore(store storage.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Warn("store close failed", logging.Error(err))
	}
}

func printSummary(cmd *cobra.Command, sum pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %8s %8s %8s %8s %8s\n", "KIND", "PATH", "LINES", "SKIPPED", "FLAGGED", "STORED", "FAILED")
	for _, r := range sum.Results {
		fmt.Fprintf(out, "%-10s %-40s %8d %8d %8d %8d %8d\n",
			r.Source.Kind, r.Source.Path, r.Lines, r.ParseFailures, r.Flagged, r.Stored, r.StoreFailures)
		if r.Err != nil {
			fmt.Fprintf(out, "  error: %v\n", r.Err)
		}
	}
	t := sum.Total
	fmt.Fprintf(out, "%-10s %-40s %8d %8d %8d %8d %8d\n", "TOTAL", "", t.Lines, t.ParseFailures, t.Flagged, t.Stored, t.StoreFailures)
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion
	LinesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_lines_read_total",
			Help: "Total number of raw lines read per source",
		},
		[]string{"source"},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_events_processed_total",
			Help: "Total number of lines parsed into events",
		},
		[]string{"source"},
	)

	ParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_parse_failures_total",
			Help: "Total number of lines skipped because they did not parse",
		},
		[]string{"source"},
	)

	// Detection
	AttemptsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_attempts_flagged_total",
			Help: "Total number of failed logins flagged as brute force",
		},
	)

	TrackedOrigins = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logwarden_detector_tracked_origins",
			Help: "Origins currently held in detector window state",
		},
	)

	// Storage
	RowsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_rows_stored_total",
			Help: "Total number of rows acknowledged by the store",
		},
	)

	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_store_failures_total",
			Help: "Total number of failed store operations",
		},
		[]string{"op"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logwarden_store_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Alerting
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_alerts_sent_total",
			Help: "Total number of alerts delivered per notifier",
		},
		[]string{"notifier", "status"},
	)

	ConfigReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_config_reloads_total",
			Help: "Total number of configuration reloads",
		},
	)
)

// ObserveStore records the duration of a store operation and counts failures
func ObserveStore(op string, start time.Time, err error) {
	StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreFailures.WithLabelValues(op).Inc()
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer serves /metrics on addr until ctx is canceled
func StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

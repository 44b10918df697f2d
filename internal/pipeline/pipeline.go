// Package pipeline wires parsing, brute-force detection and storage together.
//
// A Pipeline reads lines, parses them for their declared source, feeds
// failed logins into the detector and writes every parsed event to the store
// in batches. Parse failures and store failures are counted, never fatal: a
// bad line or a failed batch does not stop the lines after it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"logwarden/internal/logging"
	"logwarden/internal/metrics"
	"logwarden/internal/parser"
	"logwarden/internal/storage"
	"logwarden/internal/types"
)

// Defaults used by New
const (
	DefaultBatchSize     = 500
	DefaultRetries       = 3
	DefaultRetryBackoff  = 200 * time.Millisecond
	DefaultFlushInterval = 2 * time.Second
)

// Detector decides whether a failed login should be flagged.
// *detect.BruteForce implements it.
type Detector interface {
	RegisterAttempt(origin string) bool
	RegisterAttemptAt(origin string, at time.Time) bool
	Len() int
}

// Dispatcher is told about every classified record; *notify.Broker implements it
type Dispatcher interface {
	Dispatch(ctx context.Context, rec types.Record) error
}

// Auditor records flagged attempts; *audit.Logger implements it
type Auditor interface {
	LogRecord(rec types.Record) error
}

// Counts are the per-run outcome counters
type Counts struct {
	Lines         int `json:"lines"`
	Parsed        int `json:"parsed"`
	ParseFailures int `json:"parse_failures"`
	Flagged       int `json:"flagged"`
	Stored        int `json:"stored"`
	StoreFailures int `json:"store_failures"`
}

func (c *Counts) add(o Counts) {
	c.Lines += o.Lines
	c.Parsed += o.Parsed
	c.ParseFailures += o.ParseFailures
	c.Flagged += o.Flagged
	c.Stored += o.Stored
	c.StoreFailures += o.StoreFailures
}

// Result is the outcome of one source. Err is set when the source could not
// be opened or read to the end.
type Result struct {
	Source parser.Source
	Counts
	Err error
}

// Summary aggregates the results of a run
type Summary struct {
	Results []Result
	Total   Counts
}

// Err joins the errors of all sources
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func summarize(results []Result) Summary {
	s := Summary{Results: results}
	for _, r := range results {
		s.Total.add(r.Counts)
	}
	return s
}

// Pipeline holds the detector and store handles; it keeps no other state
type Pipeline struct {
	detector      Detector
	store         storage.Store
	registry      *parser.Registry
	batchSize     int
	retries       int
	retryBackoff  time.Duration
	flushInterval time.Duration
	eventTime     bool
	dispatcher    Dispatcher
	auditor       Auditor
	logger        *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithBatchSize sets how many records are written per InsertBatch
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithRetries re-issues a failed batch up to n more times, waiting backoff
// (doubled each attempt) in between
func WithRetries(n int, backoff time.Duration) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.retries = n
		}
		p.retryBackoff = backoff
	}
}

// WithFlushInterval bounds how long a partial batch waits in follow mode
func WithFlushInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithEventTime buckets attempts by the event's timestamp instead of the wall clock
func WithEventTime(enabled bool) Option {
	return func(p *Pipeline) {
		p.eventTime = enabled
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(p *Pipeline) {
		p.dispatcher = d
	}
}

func WithAuditor(a Auditor) Option {
	return func(p *Pipeline) {
		p.auditor = a
	}
}

// WithRegistry replaces the default parsers, e.g. to pin the syslog clock
func WithRegistry(r *parser.Registry) Option {
	return func(p *Pipeline) {
		p.registry = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a pipeline over an explicitly owned detector and store
func New(detector Detector, store storage.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:      detector,
		store:         store,
		registry:      parser.NewRegistry(),
		batchSize:     DefaultBatchSize,
		retries:       DefaultRetries,
		retryBackoff:  DefaultRetryBackoff,
		flushInterval: DefaultFlushInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logging.Component("pipeline"))
	return p
}

// Classify runs an event through the detector when it is a failed login and
// reports flagged attempts to the auditor and dispatcher.
func (p *Pipeline) Classify(ctx context.Context, ev types.Event) types.Record {
	rec := types.Record{Event: ev}
	if !ev.IsAuthFailure() {
		return rec
	}

	origin := ev.OriginString()
	var flag bool
	if p.eventTime {
		flag = p.detector.RegisterAttemptAt(origin, ev.Timestamp)
	} else {
		flag = p.detector.RegisterAttempt(origin)
	}
	if !flag {
		rec.Disposition = types.Allowed
		return rec
	}

	rec.Disposition = types.Flagged
	metrics.AttemptsFlagged.Inc()
	p.logger.Warn("brute force attempt flagged",
		logging.IP(origin), logging.User(types.StringValue(ev.Identity)))

	if p.auditor != nil {
		if err := p.auditor.LogRecord(rec); err != nil {
			p.logger.Error("failed to write audit log", logging.Error(err))
		}
	}
	if p.dispatcher != nil {
		if err := p.dispatcher.Dispatch(ctx, rec); err != nil {
			p.logger.Warn("alert dispatch failed", logging.IP(origin), logging.Error(err))
		}
	}
	return rec
}

// flush writes batch with retries and returns how many rows were acknowledged
// and how many were given up on
func (p *Pipeline) flush(ctx context.Context, batch []types.Record) (stored, failed int) {
	if len(batch) == 0 {
		return 0, 0
	}

	backoff := p.retryBackoff
	var err error
retry:
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				break retry
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		start := time.Now()
		err = p.store.InsertBatch(ctx, batch)
		metrics.ObserveStore("insert_batch", start, err)
		if err == nil {
			metrics.RowsStored.Add(float64(len(batch)))
			return len(batch), 0
		}
		p.logger.Warn("insert batch failed",
			logging.Count(len(batch)), slog.Int("attempt", attempt+1), logging.Error(err))
	}

	p.logger.Error("dropping batch after retries", logging.Count(len(batch)), logging.Error(err))
	return 0, len(batch)
}

// RunSource processes one file to the end. Failing to open the source is
// reported in Result.Err and affects no other source.
func (p *Pipeline) RunSource(ctx context.Context, src parser.Source) Result {
	res := Result{Source: src}
	kind := src.Kind.String()
	log := p.logger.With(logging.Path(src.Path), logging.Source(kind))

	sc, err := p.registry.ParseSourceFile(src.Path, src.Kind)
	if err != nil {
		log.Error("cannot read source", logging.Error(err))
		res.Err = err
		return res
	}
	defer sc.Close()

	batch := make([]types.Record, 0, p.batchSize)
	for sc.Next() {
		if ctx.Err() != nil {
			break
		}
		rec := p.Classify(ctx, sc.Event())
		if rec.Disposition == types.Flagged {
			res.Flagged++
		}
		batch = append(batch, rec)
		if len(batch) >= p.batchSize {
			stored, failed := p.flush(ctx, batch)
			res.Stored += stored
			res.StoreFailures += failed
			batch = batch[:0]
		}
	}
	p.drain(ctx, func(ctx context.Context) {
		stored, failed := p.flush(ctx, batch)
		res.Stored += stored
		res.StoreFailures += failed
	})

	res.Lines = sc.Lines()
	res.ParseFailures = sc.Skipped()
	res.Parsed = res.Lines - res.ParseFailures
	if err := sc.Err(); err != nil {
		res.Err = fmt.Errorf("read source %s: %w", src.Path, err)
	} else if err := ctx.Err(); err != nil {
		res.Err = err
	}

	metrics.LinesRead.WithLabelValues(kind).Add(float64(res.Lines))
	metrics.EventsProcessed.WithLabelValues(kind).Add(float64(res.Parsed))
	metrics.ParseFailures.WithLabelValues(kind).Add(float64(res.ParseFailures))
	metrics.TrackedOrigins.Set(float64(p.detector.Len()))

	attrs := []any{
		slog.Int("lines", res.Lines),
		slog.Int("parse_failures", res.ParseFailures),
		slog.Int("flagged", res.Flagged),
		slog.Int("stored", res.Stored),
		slog.Int("store_failures", res.StoreFailures),
	}
	if res.ParseFailures > 0 {
		attrs = append(attrs, slog.String("last_parse_error", sc.LastParseError().Error()))
	}
	log.Info("source processed", attrs...)
	return res
}

// Run processes all sources concurrently and aggregates their results.
// Results keep the order of sources.
func (p *Pipeline) Run(ctx context.Context, sources []parser.Source) Summary {
	results := make([]Result, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src parser.Source) {
			defer wg.Done()
			results[i] = p.RunSource(ctx, src)
		}(i, src)
	}
	wg.Wait()

	return summarize(results)
}

// Replay merges all sources by event timestamp and processes them in that
// order, so event-time detection sees attempts chronologically.
func (p *Pipeline) Replay(ctx context.Context, sources []parser.Source) Summary {
	events, stats, _ := p.registry.ParseAllStats(sources)

	results := make([]Result, len(sources))
	for i, st := range stats {
		results[i] = Result{
			Source: st.Source,
			Counts: Counts{
				Lines:         st.Lines,
				Parsed:        st.Lines - st.Skipped,
				ParseFailures: st.Skipped,
			},
			Err: st.Err,
		}
	}

	// merged events lose their file; attribute flags and writes by kind
	byKind := make(map[types.SourceKind]int)
	for i := len(sources) - 1; i >= 0; i-- {
		byKind[sources[i].Kind] = i
	}

	batch := make([]types.Record, 0, p.batchSize)
	kinds := make([]types.SourceKind, 0, p.batchSize)
	flush := func(ctx context.Context) {
		stored, _ := p.flush(ctx, batch)
		for _, k := range kinds {
			if stored > 0 {
				results[byKind[k]].Stored++
			} else {
				results[byKind[k]].StoreFailures++
			}
		}
		batch = batch[:0]
		kinds = kinds[:0]
	}

	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		rec := p.Classify(ctx, ev)
		if rec.Disposition == types.Flagged {
			results[byKind[ev.Source]].Flagged++
		}
		batch = append(batch, rec)
		kinds = append(kinds, ev.Source)
		if len(batch) >= p.batchSize {
			flush(ctx)
		}
	}
	p.drain(ctx, flush)

	for _, r := range results {
		kind := r.Source.Kind.String()
		metrics.LinesRead.WithLabelValues(kind).Add(float64(r.Lines))
		metrics.EventsProcessed.WithLabelValues(kind).Add(float64(r.Parsed))
		metrics.ParseFailures.WithLabelValues(kind).Add(float64(r.ParseFailures))
	}
	metrics.TrackedOrigins.Set(float64(p.detector.Len()))

	return summarize(results)
}

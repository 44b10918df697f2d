// Package detect flags origins that repeat failed logins faster than the
// configured thresholds allow.
//
// Each origin keeps two sets of coarse time buckets: one per minute and one
// per ten seconds. An attempt increments the current bucket of both sets and
// is flagged when the retained sum of either set reaches its threshold.
// Per-attempt timestamps are never stored, so memory grows with the number
// of active origins and is reclaimed by housekeeping.
package detect

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds the thresholds and windows of a BruteForce detector.
// WindowMins and WindowSecs count buckets: the retention horizon is
// WindowMins minutes and WindowSecs*10 seconds.
type Config struct {
	MinThreshold    int
	SecThreshold    int
	WindowMins      int64
	WindowSecs      int64
	CleanupInterval time.Duration
}

// DefaultConfig returns conservative thresholds for sshd brute force
func DefaultConfig() Config {
	return Config{
		MinThreshold:    5,
		SecThreshold:    5,
		WindowMins:      1,
		WindowSecs:      1,
		CleanupInterval: time.Minute,
	}
}

type buckets map[int64]int

// sum adds the buckets that are less than window buckets behind current
func (b buckets) sum(origin string, current, window int64) int {
	total := 0
	for key, count := range b {
		if count <= 0 {
			panic(fmt.Sprintf("detect: bucket %d for %s holds non-positive count %d", key, origin, count))
		}
		if current-key < window {
			total += count
		}
	}
	return total
}

// prune drops buckets that fell out of the window
func (b buckets) prune(current, window int64) {
	for key := range b {
		if current-key >= window {
			delete(b, key)
		}
	}
}

type originState struct {
	minutes buckets
	tens    buckets
}

// BruteForce is the sliding-window detector. It is safe for concurrent use;
// one mutex serializes increments with housekeeping.
type BruteForce struct {
	mu          sync.Mutex
	cfg         Config
	origins     map[string]*originState
	lastCleanup int64
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a BruteForce detector
type Option func(*BruteForce)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(d *BruteForce) {
		d.now = now
	}
}

// WithLogger sets the logger used for housekeeping reports
func WithLogger(logger *slog.Logger) Option {
	return func(d *BruteForce) {
		d.logger = logger
	}
}

// New creates a detector. Housekeeping is first due one CleanupInterval after
// construction, or after the first attempt if that is older.
func New(cfg Config, opts ...Option) *BruteForce {
	d := &BruteForce{
		cfg:     cfg,
		origins: make(map[string]*originState),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lastCleanup = d.now().Unix()
	return d
}

// RegisterAttempt records a failed login from origin at the current time
// and reports whether the origin should be blocked.
func (d *BruteForce) RegisterAttempt(origin string) bool {
	return d.RegisterAttemptAt(origin, d.now())
}

// RegisterAttemptAt is RegisterAttempt with an explicit time, used when
// replaying historical logs by event time.
func (d *BruteForce) RegisterAttemptAt(origin string, at time.Time) bool {
	sec := at.Unix()
	minute := floorDiv(sec, 60)
	ten := floorDiv(sec, 10)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case sec < d.lastCleanup:
		// replaying older events; restart the interval from their time
		d.lastCleanup = sec
	case sec-d.lastCleanup > int64(d.cfg.CleanupInterval/time.Second):
		d.housekeep(minute, ten)
		d.lastCleanup = sec
	}

	st, ok := d.origins[origin]
	if !ok {
		st = &originState{minutes: make(buckets), tens: make(buckets)}
		d.origins[origin] = st
	}
	st.minutes[minute]++
	st.tens[ten]++

	minFailures := st.minutes.sum(origin, minute, d.cfg.WindowMins)
	secFailures := st.tens.sum(origin, ten, d.cfg.WindowSecs)

	return minFailures >= d.cfg.MinThreshold || secFailures >= d.cfg.SecThreshold
}

// housekeep evicts expired buckets and empty origins. Caller must hold lock.
func (d *BruteForce) housekeep(minute, ten int64) {
	evicted := 0
	for origin, st := range d.origins {
		st.minutes.prune(minute, d.cfg.WindowMins)
		st.tens.prune(ten, d.cfg.WindowSecs)
		if len(st.minutes) == 0 && len(st.tens) == 0 {
			delete(d.origins, origin)
			evicted++
		}
	}
	d.logger.Debug("detector housekeeping",
		slog.Int("evicted_origins", evicted),
		slog.Int("tracked_origins", len(d.origins)),
	)
}

// Len returns the number of origins currently tracked
func (d *BruteForce) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.origins)
}

// Counts returns the in-window attempt sums for origin as of the detector's clock
func (d *BruteForce) Counts(origin string) (perMinute, perTenSeconds int) {
	sec := d.now().Unix()

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.origins[origin]
	if !ok {
		return 0, 0
	}
	return st.minutes.sum(origin, floorDiv(sec, 60), d.cfg.WindowMins),
		st.tens.sum(origin, floorDiv(sec, 10), d.cfg.WindowSecs)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

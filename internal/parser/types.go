package parser

import (
	"errors"
	"fmt"
	"time"

	"logwarden/internal/types"
)

var (
	// ErrNoMatch means the line does not have the shape of its declared source
	ErrNoMatch = errors.New("line does not match source format")
	// ErrTimestamp means the shape matched but the date or zone did not parse
	ErrTimestamp = errors.New("invalid timestamp")
	// ErrAddress means the client address is not an IP address
	ErrAddress = errors.New("invalid client address")
	// ErrUnsupportedSource is returned for a SourceKind with no parser
	ErrUnsupportedSource = errors.New("unsupported source kind")
)

// ParseError is a line that could not be mapped to an Event
type ParseError struct {
	Source types.SourceKind
	Line   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s line: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func fail(kind types.SourceKind, line string, err error) error {
	return &ParseError{Source: kind, Line: line, Err: err}
}

// Parser defines the interface for log parsers
type Parser interface {
	Parse(line string) (types.Event, error)
}

type options struct {
	now func() time.Time
	loc *time.Location
}

// Option configures how parsers resolve timestamps
type Option func(*options)

// WithClock sets the reference clock used to infer the year of syslog timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLocation sets the zone syslog timestamps are written in (UTC by default)
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.loc = loc
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Registry dispatches lines to the parser for their declared source
type Registry struct {
	web  *WebAccessParser
	auth *AuthLogParser
}

// NewRegistry builds parsers for every supported source kind
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		web:  NewWebAccessParser(),
		auth: NewAuthLogParser(opts...),
	}
}

// Parse maps one raw line to an Event. Any failure is a *ParseError.
func (r *Registry) Parse(line string, kind types.SourceKind) (types.Event, error) {
	switch kind {
	case types.SourceWebAccess:
		return r.web.Parse(line)
	case types.SourceAuthLog:
		return r.auth.Parse(line)
	default:
		return types.Event{}, fail(kind, line, ErrUnsupportedSource)
	}
}

var defaultRegistry = NewRegistry()

// Parse uses the default registry (wall clock, UTC)
func Parse(line string, kind types.SourceKind) (types.Event, error) {
	return defaultRegistry.Parse(line, kind)
}

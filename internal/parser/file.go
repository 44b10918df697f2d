package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"logwarden/internal/types"
)

// Source is one configured input file and the format its lines are in
type Source struct {
	Kind types.SourceKind
	Path string
}

// FileScanner reads a source file lazily, one Event per Next call.
// Lines that fail to parse are skipped and counted.
type FileScanner struct {
	f       *os.File
	r       *bufio.Reader
	reg     *Registry
	kind    types.SourceKind
	cur     types.Event
	lines   int
	skipped int
	lastErr error
	err     error
	done    bool
}

// ParseSourceFile opens path for a single pass. Failing to open the file is
// returned immediately; it is fatal for this source only.
func (r *Registry) ParseSourceFile(path string, kind types.SourceKind) (*FileScanner, error) {
	if kind != types.SourceWebAccess && kind != types.SourceAuthLog {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedSource)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	return &FileScanner{
		f:    f,
		r:    bufio.NewReaderSize(f, 64*1024),
		reg:  r,
		kind: kind,
	}, nil
}

// ParseSourceFile uses the default registry
func ParseSourceFile(path string, kind types.SourceKind) (*FileScanner, error) {
	return defaultRegistry.ParseSourceFile(path, kind)
}

// Next advances to the next parseable line
func (s *FileScanner) Next() bool {
	for !s.done {
		line, err := s.r.ReadString('\n')
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = err
				return false
			}
			if line == "" {
				return false
			}
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.lines++

		evt, perr := s.reg.Parse(line, s.kind)
		if perr != nil {
			s.skipped++
			s.lastErr = perr
			continue
		}
		s.cur = evt
		return true
	}
	return false
}

// Event returns the event produced by the last successful Next
func (s *FileScanner) Event() types.Event {
	return s.cur
}

// Lines is the number of non-blank lines read so far
func (s *FileScanner) Lines() int {
	return s.lines
}

// Skipped is the number of lines that failed to parse so far
func (s *FileScanner) Skipped() int {
	return s.skipped
}

// LastParseError returns the most recent skipped line's error, for sampling in logs
func (s *FileScanner) LastParseError() error {
	return s.lastErr
}

// Err returns a read error that stopped the scan early
func (s *FileScanner) Err() error {
	return s.err
}

func (s *FileScanner) Close() error {
	return s.f.Close()
}

// Stats describes one source read by ParseAllStats
type Stats struct {
	Source  Source
	Lines   int
	Skipped int
	Err     error
}

// ParseAll reads every source and returns their events ordered by timestamp,
// ties kept in input order. A source that cannot be opened contributes nothing
// and its error is joined into the result; the others are still returned.
func (r *Registry) ParseAll(sources []Source) ([]types.Event, error) {
	events, _, err := r.ParseAllStats(sources)
	return events, err
}

// ParseAllStats is ParseAll plus per-source line counts, in sources order
func (r *Registry) ParseAllStats(sources []Source) ([]types.Event, []Stats, error) {
	var (
		all  []types.Event
		errs []error
	)
	stats := make([]Stats, len(sources))
	for i, src := range sources {
		stats[i].Source = src
		sc, err := r.ParseSourceFile(src.Path, src.Kind)
		if err != nil {
			stats[i].Err = err
			errs = append(errs, err)
			continue
		}
		for sc.Next() {
			all = append(all, sc.Event())
		}
		if err := sc.Err(); err != nil {
			stats[i].Err = fmt.Errorf("read source %s: %w", src.Path, err)
			errs = append(errs, stats[i].Err)
		}
		stats[i].Lines = sc.Lines()
		stats[i].Skipped = sc.Skipped()
		sc.Close()
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, stats, errors.Join(errs...)
}

// ParseAll uses the default registry
func ParseAll(sources []Source) ([]types.Event, error) {
	return defaultRegistry.ParseAll(sources)
}

// ParseAllStats uses the default registry
func ParseAllStats(sources []Source) ([]types.Event, []Stats, error) {
	return defaultRegistry.ParseAllStats(sources)
}

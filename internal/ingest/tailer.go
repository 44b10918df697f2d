package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nxadm/tail"

	"logwarden/internal/logging"
	"logwarden/internal/types"
)

// LogLine represents a raw line from a log source
type LogLine struct {
	Kind     types.SourceKind
	Source   string // file path or "journald"
	Received time.Time
	Content  string
}

// Ingester defines the interface for follow-mode log sources
type Ingester interface {
	Start(ctx context.Context) (<-chan LogLine, error)
	Stop() error
}

// FileTailer implements Ingester for a single file
type FileTailer struct {
	path      string
	kind      types.SourceKind
	fromStart bool
	poll      bool
	logger    *slog.Logger
	t         *tail.Tail
}

// TailOption configures a FileTailer
type TailOption func(*FileTailer)

// FromStart reads the existing content before following; by default only new lines are read
func FromStart() TailOption {
	return func(f *FileTailer) {
		f.fromStart = true
	}
}

// WithPolling switches from inotify to polling, for docker mounts and network filesystems
func WithPolling() TailOption {
	return func(f *FileTailer) {
		f.poll = true
	}
}

// WithTailLogger sets the logger for tailer lifecycle messages
func WithTailLogger(l *slog.Logger) TailOption {
	return func(f *FileTailer) {
		f.logger = l
	}
}

// NewFileTailer creates a new tailer for a path whose lines are of the given kind
func NewFileTailer(path string, kind types.SourceKind, opts ...TailOption) *FileTailer {
	f := &FileTailer{
		path:   path,
		kind:   kind,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins tailing the file and returns a channel of lines.
// The channel closes when ctx is done or the tailer is stopped.
func (f *FileTailer) Start(ctx context.Context) (<-chan LogLine, error) {
	// follow and reopen on rotate
	config := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      f.poll,
		Logger:    tail.DiscardingLogger,
	}
	if !f.fromStart {
		config.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	f.logger.Info("starting tailer (waiting if not present)",
		logging.Path(f.path), logging.Source(f.kind.String()))

	t, err := tail.TailFile(f.path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to tail file %s: %w", f.path, err)
	}
	f.t = t

	out := make(chan LogLine)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					// rotation produces transient errors; not worth logging each one
					continue
				}
				select {
				case out <- LogLine{Kind: f.kind, Source: f.path, Received: line.Time, Content: line.Text}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Stop stops the tailing
func (f *FileTailer) Stop() error {
	if f.t != nil {
		err := f.t.Stop()
		f.t.Cleanup()
		return err
	}
	return nil
}

// Package logging configures log/slog for logwarden and provides attribute
// helpers so field names stay consistent across packages.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Field names used across components
const (
	FieldComponent = "component"
	FieldSource    = "source"
	FieldPath      = "path"
	FieldIP        = "ip"
	FieldUser      = "user"
	FieldCount     = "count"
	FieldError     = "error"
	FieldBackend   = "backend"
)

// New creates a logger writing to stderr. format is "json" or "text" (default json).
func New(level slog.Level, format string) *slog.Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OrDefault returns l, or slog.Default() when l is nil
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

func Source(kind string) slog.Attr {
	return slog.String(FieldSource, kind)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func User(name string) slog.Attr {
	return slog.String(FieldUser, name)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// Error returns an attribute for err. A nil error logs as "<nil>".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "<nil>")
	}
	return slog.String(FieldError, err.Error())
}

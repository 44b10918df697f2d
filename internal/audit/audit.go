package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"logwarden/internal/types"
)

// Entry is one line of the audit trail
type Entry struct {
	Logged      time.Time `json:"logged_at"`
	Timestamp   time.Time `json:"timestamp"`
	SourceIP    string    `json:"source_ip"`
	User        string    `json:"user,omitempty"`
	Disposition string    `json:"disposition"`
	ThreatLevel string    `json:"threat_level"`
	Raw         string    `json:"raw"`
}

// Logger handles appending flagged attempts to the audit log
type Logger struct {
	mu       sync.Mutex
	filePath string
	now      func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(filePath string) *Logger {
	return &Logger{
		filePath: filePath,
		now:      time.Now,
	}
}

// LogRecord writes a record to the audit log as one JSON line, in a thread-safe manner
func (l *Logger) LogRecord(rec types.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	entry := Entry{
		Logged:      l.now().UTC(),
		Timestamp:   rec.Event.Timestamp.UTC(),
		SourceIP:    rec.Event.OriginString(),
		User:        types.StringValue(rec.Event.Identity),
		Disposition: rec.Disposition.String(),
		ThreatLevel: string(rec.Risk()),
		Raw:         rec.Event.Raw,
	}

	encoder := json.NewEncoder(f)
	if err := encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	return nil
}

package audit

import (
	"bufio"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"logwarden/internal/types"
)

func TestLogRecord_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)

	user := "admin"
	rec := types.Record{
		Event: types.Event{
			Timestamp: time.Date(2024, time.March, 12, 14, 56, 23, 0, time.UTC),
			Source:    types.SourceAuthLog,
			Origin:    netip.MustParseAddr("203.0.113.5"),
			Identity:  &user,
			Outcome:   types.OutcomeFailed,
			Raw:       "raw line",
		},
		Disposition: types.Flagged,
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.LogRecord(rec); err != nil {
				t.Errorf("LogRecord() error = %v", err)
			}
		}()
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		if e.SourceIP != "203.0.113.5" || e.User != "admin" || e.Disposition != "flagged" || e.ThreatLevel != "high" {
			t.Errorf("unexpected entry %+v", e)
		}
		lines++
	}
	if lines != 10 {
		t.Errorf("got %d lines, want 10", lines)
	}
}

func TestLogRecord_BadPath(t *testing.T) {
	l := NewLogger(filepath.Join(t.TempDir(), "missing", "audit.log"))
	if err := l.LogRecord(types.Record{}); err == nil {
		t.Error("expected error for a missing directory")
	}
}

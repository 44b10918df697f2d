package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logwarden/internal/types"
)

func writeLines(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseSourceFile_SkipsBadLines(t *testing.T) {
	path := writeLines(t, "access.log",
		`192.168.1.1 - - [12/Mar/2024:14:56:23 +0000] "GET /index.html HTTP/1.1" 200 512`,
		`garbage`,
		``,
		`10.0.0.2 - - [12/Mar/2024:15:10:45 +0000] "POST /api/data HTTP/1.1" 201 1024`,
	)

	sc, err := ParseSourceFile(path, types.SourceWebAccess)
	if err != nil {
		t.Fatalf("ParseSourceFile() error = %v", err)
	}
	defer sc.Close()

	var got []types.Event
	for sc.Next() {
		got = append(got, sc.Event())
	}
	if sc.Err() != nil {
		t.Fatalf("unexpected read error: %v", sc.Err())
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if sc.Lines() != 3 || sc.Skipped() != 1 {
		t.Errorf("Expected 3 lines / 1 skipped, got %d / %d", sc.Lines(), sc.Skipped())
	}
	if !errors.Is(sc.LastParseError(), ErrNoMatch) {
		t.Errorf("Expected last parse error to be ErrNoMatch, got %v", sc.LastParseError())
	}
}

func TestParseSourceFile_MissingFile(t *testing.T) {
	_, err := ParseSourceFile(filepath.Join(t.TempDir(), "nope.log"), types.SourceAuthLog)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected not-exist error, got %v", err)
	}
}

func TestParseSourceFile_CRLF(t *testing.T) {
	path := writeLines(t, "auth.log",
		"Mar 12 14:56:23 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2\r",
		"Mar 12 14:56:24 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2\r",
	)

	sc, err := ParseSourceFile(path, types.SourceAuthLog)
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	n := 0
	for sc.Next() {
		n++
	}
	if n != 2 {
		t.Errorf("Expected 2 events, got %d (skipped %d)", n, sc.Skipped())
	}
}

func TestParseAll_OrdersByTimestamp(t *testing.T) {
	reg := NewRegistry(WithClock(fixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))))

	web := writeLines(t, "access.log",
		`192.168.1.1 - - [12/Mar/2024:14:56:25 +0000] "GET /b HTTP/1.1" 200 1`,
		`192.168.1.1 - - [12/Mar/2024:14:56:23 +0000] "GET /a HTTP/1.1" 200 1`,
	)
	auth := writeLines(t, "auth.log",
		"Mar 12 14:56:24 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2",
		"Mar 12 14:56:25 host sshd[1]: Accepted password for root from 1.2.3.4 port 22 ssh2",
	)
	missing := filepath.Join(t.TempDir(), "missing.log")

	events, err := reg.ParseAll([]Source{
		{Kind: types.SourceWebAccess, Path: web},
		{Kind: types.SourceAuthLog, Path: missing},
		{Kind: types.SourceAuthLog, Path: auth},
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected joined open error for the missing source, got %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}

	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events not ordered at %d", i)
		}
	}

	// 14:56:25 appears in both files; web was listed first.
	if events[2].Source != types.SourceWebAccess || events[3].Source != types.SourceAuthLog {
		t.Errorf("Expected stable order for equal timestamps, got %s then %s", events[2].Source, events[3].Source)
	}
}

func TestParseAllStats_CountsPerSource(t *testing.T) {
	web := writeLines(t, "access.log",
		`192.168.1.1 - - [12/Mar/2024:14:56:23 +0000] "GET / HTTP/1.1" 200 1`,
		`not a log line`,
	)
	missing := filepath.Join(t.TempDir(), "missing.log")

	events, stats, err := ParseAllStats([]Source{
		{Kind: types.SourceWebAccess, Path: web},
		{Kind: types.SourceAuthLog, Path: missing},
	})
	if err == nil {
		t.Error("Expected an error for the missing source")
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if len(stats) != 2 {
		t.Fatalf("Expected stats for both sources, got %d", len(stats))
	}
	if stats[0].Lines != 2 || stats[0].Skipped != 1 || stats[0].Err != nil {
		t.Errorf("unexpected web stats %+v", stats[0])
	}
	if stats[1].Err == nil || stats[1].Source.Path != missing {
		t.Errorf("unexpected missing-source stats %+v", stats[1])
	}
}

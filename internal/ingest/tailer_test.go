package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"logwarden/internal/types"
)

func TestFileTailer_FromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(path, []byte("first\nsecond\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewFileTailer(path, types.SourceWebAccess, FromStart(), WithPolling())
	lines, err := tailer.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tailer.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("third\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	want := []string{"first", "second", "third"}
	for i, w := range want {
		select {
		case line := <-lines:
			if line.Content != w {
				t.Errorf("line %d = %q, want %q", i, line.Content, w)
			}
			if line.Kind != types.SourceWebAccess || line.Source != path {
				t.Errorf("line %d has kind %v source %q", i, line.Kind, line.Source)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}
}

func TestFileTailer_ClosesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tailer := NewFileTailer(path, types.SourceAuthLog, WithPolling())
	lines, err := tailer.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tailer.Stop()

	cancel()
	select {
	case _, ok := <-lines:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

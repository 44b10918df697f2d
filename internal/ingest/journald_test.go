package ingest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"logwarden/internal/parser"
	"logwarden/internal/types"
)

func TestFormatEntry(t *testing.T) {
	// 2024-03-12T14:56:23Z
	const realtime = "1710255383000000"

	tests := []struct {
		name    string
		entry   JournalEntry
		want    string
		ok      bool
		wantErr error
	}{
		{
			name: "sshd failure",
			entry: JournalEntry{
				Timestamp:        realtime,
				Hostname:         "bastion",
				Message:          "Failed password for root from 203.0.113.5 port 51234 ssh2",
				SyslogIdentifier: "sshd",
				PID:              "812",
				UID:              "0",
			},
			want: "Mar 12 14:56:23 bastion sshd[812]: Failed password for root from 203.0.113.5 port 51234 ssh2",
			ok:   true,
		},
		{
			name: "sshd-session is rendered as sshd",
			entry: JournalEntry{
				Timestamp:        realtime,
				Message:          "Accepted password for alice from 10.0.0.2 port 40000 ssh2",
				SyslogIdentifier: "sshd-session",
				PID:              "9",
				UID:              "0",
			},
			want: "Mar 12 14:56:23 localhost sshd[9]: Accepted password for alice from 10.0.0.2 port 40000 ssh2",
			ok:   true,
		},
		{
			name:  "other program",
			entry: JournalEntry{Timestamp: realtime, SyslogIdentifier: "cron", UID: "0"},
			ok:    false,
		},
		{
			name: "spoofed sshd",
			entry: JournalEntry{
				Timestamp:        realtime,
				Message:          "Failed password for root from 1.2.3.4 port 1 ssh2",
				SyslogIdentifier: "sshd",
				UID:              "1000",
			},
			ok:      true,
			wantErr: errSpoofed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := FormatEntry(tt.entry)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestFormatEntry_BadTimestamp(t *testing.T) {
	_, ok, err := FormatEntry(JournalEntry{Timestamp: "yesterday", SyslogIdentifier: "sshd", UID: "0"})
	if !ok || err == nil {
		t.Errorf("expected an error for a malformed timestamp, got ok=%v err=%v", ok, err)
	}
}

func TestFormatEntry_ParsesAsAuthLog(t *testing.T) {
	raw := `{"__REALTIME_TIMESTAMP":"1710255383000000","_HOSTNAME":"bastion","MESSAGE":"Failed password for invalid user admin from 2001:db8::7 port 22 ssh2","SYSLOG_IDENTIFIER":"sshd","_PID":"77","_UID":"0"}`

	var entry JournalEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	line, ok, err := FormatEntry(entry)
	if !ok || err != nil {
		t.Fatalf("FormatEntry: ok=%v err=%v", ok, err)
	}

	now := func() time.Time { return time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC) }
	ev, err := parser.NewRegistry(parser.WithClock(now)).Parse(line, types.SourceAuthLog)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	if !ev.IsAuthFailure() {
		t.Error("expected an auth failure")
	}
	if got := ev.OriginString(); got != "2001:db8::7" {
		t.Errorf("origin = %q", got)
	}
	if want := time.Date(2024, time.March, 12, 14, 56, 23, 0, time.UTC); !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

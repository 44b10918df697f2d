package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"logwarden/internal/logging"
	"logwarden/internal/types"
)

// JournalEntry represents the JSON structure from journalctl
type JournalEntry struct {
	Timestamp        string `json:"__REALTIME_TIMESTAMP"` // microseconds since epoch
	Hostname         string `json:"_HOSTNAME"`
	Message          string `json:"MESSAGE"`
	SyslogIdentifier string `json:"SYSLOG_IDENTIFIER"`
	PID              string `json:"_PID"`
	UID              string `json:"_UID"`
}

var errSpoofed = errors.New("sshd entry not written by root")

// sshIdentifiers are the syslog identifiers OpenSSH logs under
var sshIdentifiers = map[string]bool{
	"sshd":         true,
	"sshd-session": true,
}

// FormatEntry renders an sshd journal entry as a syslog line the auth parser
// understands. The timestamp is written in UTC. ok is false for entries from
// other programs; err is set for malformed or spoofed sshd entries.
func FormatEntry(entry JournalEntry) (line string, ok bool, err error) {
	if !sshIdentifiers[entry.SyslogIdentifier] {
		return "", false, nil
	}
	// "logger -t sshd" from an unprivileged user
	if entry.UID != "0" {
		return "", true, fmt.Errorf("%w: uid %s pid %s", errSpoofed, entry.UID, entry.PID)
	}

	usec, err := strconv.ParseInt(entry.Timestamp, 10, 64)
	if err != nil {
		return "", true, fmt.Errorf("invalid __REALTIME_TIMESTAMP %q: %w", entry.Timestamp, err)
	}
	at := time.UnixMicro(usec).UTC()

	host := entry.Hostname
	if host == "" {
		host = "localhost"
	}

	return fmt.Sprintf("%s %s sshd[%s]: %s", at.Format(time.Stamp), host, entry.PID, entry.Message), true, nil
}

// JournalReader follows the systemd journal via CLI
type JournalReader struct {
	logger *slog.Logger
	cmd    *exec.Cmd
}

func NewJournalReader(logger *slog.Logger) *JournalReader {
	return &JournalReader{logger: logging.OrDefault(logger)}
}

// Start runs journalctl -f and emits sshd entries as AuthLog lines
func (j *JournalReader) Start(ctx context.Context) (<-chan LogLine, error) {
	cmd := exec.CommandContext(ctx, "journalctl", "-f", "-o", "json", "-n", "0")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe journalctl: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("journalctl not found (not a systemd system?)")
		}
		return nil, fmt.Errorf("failed to start journalctl: %w", err)
	}
	j.cmd = cmd

	out := make(chan LogLine)

	go func() {
		defer close(out)
		defer cmd.Wait()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			var entry JournalEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				// partial line
				continue
			}

			content, ok, err := FormatEntry(entry)
			if !ok {
				continue
			}
			if err != nil {
				j.logger.Warn("dropped journal entry", logging.Error(err))
				continue
			}

			select {
			case out <- LogLine{Kind: types.SourceAuthLog, Source: "journald", Received: time.Now(), Content: content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (j *JournalReader) Stop() error {
	if j.cmd != nil && j.cmd.Process != nil {
		return j.cmd.Process.Kill()
	}
	return nil
}

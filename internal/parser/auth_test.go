package parser

import (
	"errors"
	"testing"
	"time"

	"logwarden/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAuthLogParser_Parse_Failed(t *testing.T) {
	parser := NewAuthLogParser(WithClock(fixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))))

	line := "Mar 12 14:56:23 web01 sshd[52944]: Failed password for root from 192.168.1.100 port 52944 ssh2"
	evt, err := parser.Parse(line)
	if err != nil {
		t.Fatalf("Expected parsed event, got %v", err)
	}
	if evt.Source != types.SourceAuthLog {
		t.Errorf("Expected source auth_log, got %s", evt.Source)
	}
	if evt.Outcome != types.OutcomeFailed {
		t.Errorf("Expected outcome failed, got %s", evt.Outcome)
	}
	if got := types.StringValue(evt.Identity); got != "root" {
		t.Errorf("Expected user 'root', got '%s'", got)
	}
	if evt.OriginString() != "192.168.1.100" {
		t.Errorf("Expected IP '192.168.1.100', got '%s'", evt.OriginString())
	}
	want := time.Date(2024, time.March, 12, 14, 56, 23, 0, time.UTC)
	if !evt.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %s, got %s", want, evt.Timestamp)
	}
	if evt.Request != nil || evt.UserAgent != nil || evt.StatusCode != 0 {
		t.Error("Expected web fields to be absent")
	}
}

func TestAuthLogParser_Parse_Accepted(t *testing.T) {
	parser := NewAuthLogParser()

	evt, err := parser.Parse("Mar  2 09:01:02 bastion sshd[22]: Accepted password for deploy from 10.0.0.5 port 22 ssh2")
	if err != nil {
		t.Fatalf("Expected parsed event, got %v", err)
	}
	if evt.Outcome != types.OutcomeSucceeded {
		t.Errorf("Expected outcome succeeded, got %s", evt.Outcome)
	}
	if got := types.StringValue(evt.Identity); got != "deploy" {
		t.Errorf("Expected user 'deploy', got '%s'", got)
	}
}

func TestAuthLogParser_Parse_InvalidUser(t *testing.T) {
	parser := NewAuthLogParser()

	evt, err := parser.Parse("Mar 12 14:56:23 host sshd[1]: Failed password for invalid user admin from 2001:db8::7 port 4711 ssh2")
	if err != nil {
		t.Fatalf("Expected parsed event, got %v", err)
	}
	if got := types.StringValue(evt.Identity); got != "admin" {
		t.Errorf("Expected user 'admin', got '%s'", got)
	}
	if evt.OriginString() != "2001:db8::7" {
		t.Errorf("Expected IPv6 origin, got '%s'", evt.OriginString())
	}
}

func TestAuthLogParser_Parse_YearRollover(t *testing.T) {
	parser := NewAuthLogParser(WithClock(fixedClock(time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC))))

	evt, err := parser.Parse("Dec 31 23:59:59 host sshd[1]: Failed password for root from 1.2.3.4 port 1 ssh2")
	if err != nil {
		t.Fatalf("Expected parsed event, got %v", err)
	}
	if evt.Timestamp.Year() != 2024 {
		t.Errorf("Expected December line read in January to fall in 2024, got %d", evt.Timestamp.Year())
	}
}

func TestAuthLogParser_Parse_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	parser := NewAuthLogParser(
		WithLocation(loc),
		WithClock(fixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))),
	)

	evt, err := parser.Parse("Mar 12 14:56:23 host sshd[1]: Failed password for root from 1.2.3.4 port 1 ssh2")
	if err != nil {
		t.Fatalf("Expected parsed event, got %v", err)
	}
	if evt.Timestamp.Hour() != 12 {
		t.Errorf("Expected 12:56 UTC, got %s", evt.Timestamp)
	}
}

func TestAuthLogParser_Parse_Invalid(t *testing.T) {
	parser := NewAuthLogParser()

	tests := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrNoMatch},
		{"not ssh", "This is not an SSH log line", ErrNoMatch},
		{"session opened", "Mar 12 14:56:23 host sshd[1]: pam_unix(sshd:session): session opened for user root by (uid=0)", ErrNoMatch},
		{"publickey", "Mar 12 14:56:23 host sshd[1]: Accepted publickey for root from 1.2.3.4 port 22 ssh2", ErrNoMatch},
		{"no header", "Failed password for root from 1.2.3.4 port 22 ssh2", ErrNoMatch},
		{"trailing text", "Mar 12 14:56:23 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2 extra", ErrNoMatch},
		{"bad month", "Foo 12 14:56:23 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2", ErrTimestamp},
		{"bad day", "Mar 32 14:56:23 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2", ErrTimestamp},
		{"bad hour", "Mar 12 25:56:23 host sshd[1]: Failed password for root from 1.2.3.4 port 22 ssh2", ErrTimestamp},
		{"bad address", "Mar 12 14:56:23 host sshd[1]: Failed password for root from example.com port 22 ssh2", ErrAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.line)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegistry_Parse_Dispatch(t *testing.T) {
	reg := NewRegistry()

	line := `192.168.1.1 - - [12/Mar/2024:14:56:23 +0000] "GET /index.html HTTP/1.1" 200 512`
	if _, err := reg.Parse(line, types.SourceWebAccess); err != nil {
		t.Errorf("Expected web line to parse, got %v", err)
	}
	if _, err := reg.Parse(line, types.SourceAuthLog); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Expected web line to fail as auth log, got %v", err)
	}
	if _, err := reg.Parse(line, types.SourceUnknown); !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("Expected unsupported source, got %v", err)
	}
}

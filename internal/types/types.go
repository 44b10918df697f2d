package types

import (
	"net/netip"
	"time"
)

// SourceKind identifies the log format an event was parsed from
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceWebAccess
	SourceAuthLog
)

func (k SourceKind) String() string {
	switch k {
	case SourceWebAccess:
		return "web_access"
	case SourceAuthLog:
		return "auth_log"
	default:
		return "unknown"
	}
}

// ParseSourceKind maps a configuration key back to a SourceKind
func ParseSourceKind(s string) (SourceKind, bool) {
	switch s {
	case "web_access", "nginx", "access":
		return SourceWebAccess, true
	case "auth_log", "auth", "sshd":
		return SourceAuthLog, true
	}
	return SourceUnknown, false
}

// AuthOutcome is the result of an authentication attempt
type AuthOutcome int

const (
	OutcomeNone AuthOutcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o AuthOutcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return ""
	}
}

// RiskLevel defines the severity of an event
type RiskLevel string

const (
	RiskInfo     RiskLevel = "info"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Event is one parsed log line. Fields that do not apply to Source are
// left absent: nil pointers, an invalid Origin, OutcomeNone.
// StatusCode 0 means the status was missing or unparseable.
type Event struct {
	Timestamp  time.Time
	Source     SourceKind
	Origin     netip.Addr
	Identity   *string
	Request    *string
	StatusCode uint16
	UserAgent  *string
	Outcome    AuthOutcome
	Raw        string
}

// HasOrigin reports whether the line carried a client address
func (e Event) HasOrigin() bool {
	return e.Origin.IsValid()
}

// OriginString returns the client address or "" when absent
func (e Event) OriginString() string {
	if !e.Origin.IsValid() {
		return ""
	}
	return e.Origin.String()
}

// IsAuthFailure reports whether the event is a failed login with a known origin.
// Only these feed the brute-force detector.
func (e Event) IsAuthFailure() bool {
	return e.Source == SourceAuthLog && e.Outcome == OutcomeFailed && e.Origin.IsValid()
}

// Disposition is the detector's verdict attached to an event before storage
type Disposition int

const (
	NotEvaluated Disposition = iota
	Allowed
	Flagged
)

func (d Disposition) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Flagged:
		return "flagged"
	default:
		return "none"
	}
}

// Record pairs an event with the pipeline's verdict for it
type Record struct {
	Event       Event
	Disposition Disposition
}

// Risk scores a record. A status of 0 is unknown and never raises the level.
func (r Record) Risk() RiskLevel {
	if r.Disposition == Flagged {
		return RiskHigh
	}
	ev := r.Event
	switch ev.Source {
	case SourceAuthLog:
		if ev.Outcome == OutcomeFailed {
			return RiskLow
		}
	case SourceWebAccess:
		if ev.StatusCode == 401 || ev.StatusCode == 403 {
			return RiskLow
		}
	}
	return RiskInfo
}

// StringValue dereferences an optional field, returning "" when absent
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// StringPtr returns a pointer to a copy of s
func StringPtr(s string) *string {
	return &s
}

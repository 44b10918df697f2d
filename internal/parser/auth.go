package parser

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"logwarden/internal/types"
)

const syslogTimeLayout = "Jan 2 15:04:05 2006"

// AuthLogParser extracts password logins from sshd lines in a syslog-style auth log.
// Format: Mar 12 14:56:23 host sshd[4242]: Failed password for root from 1.2.3.4 port 52944 ssh2
// Any other sshd message (session opened, disconnects, pubkey) is rejected.
type AuthLogParser struct {
	re   *regexp.Regexp
	opts options
}

// NewAuthLogParser creates a new auth log parser
func NewAuthLogParser(opts ...Option) *AuthLogParser {
	return &AuthLogParser{
		// 1=Month, 2=Day, 3=Clock, 4=Verb, 5=User, 6=IP
		re:   regexp.MustCompile(`^\s*([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}:\d{2}:\d{2})\s+.*?\bsshd\[[^\]]*\]:\s+(Failed|Accepted) password for (?:invalid user )?(\S+) from (\S+) port \d+ ssh2\s*$`),
		opts: buildOptions(opts),
	}
}

// Parse implements the Parser interface
func (p *AuthLogParser) Parse(line string) (types.Event, error) {
	matches := p.re.FindStringSubmatch(line)
	if matches == nil {
		return types.Event{}, fail(types.SourceAuthLog, line, ErrNoMatch)
	}

	ts, err := p.timestamp(matches[1], matches[2], matches[3])
	if err != nil {
		return types.Event{}, fail(types.SourceAuthLog, line, ErrTimestamp)
	}

	addr, err := netip.ParseAddr(matches[6])
	if err != nil {
		return types.Event{}, fail(types.SourceAuthLog, line, ErrAddress)
	}

	user := matches[5]
	outcome := types.OutcomeFailed
	if matches[4] == "Accepted" {
		outcome = types.OutcomeSucceeded
	}

	return types.Event{
		Timestamp: ts,
		Source:    types.SourceAuthLog,
		Origin:    addr.Unmap(),
		Identity:  &user,
		Outcome:   outcome,
		Raw:       line,
	}, nil
}

// timestamp resolves a year-less syslog stamp. The current year is assumed
// unless that puts the event more than a day ahead of the clock, which
// happens when December lines are read in January.
func (p *AuthLogParser) timestamp(month, day, clock string) (time.Time, error) {
	now := p.opts.now().In(p.opts.loc)
	year := now.Year()

	stamp := strings.Join([]string{month, day, clock}, " ")
	ts, err := time.ParseInLocation(syslogTimeLayout, fmt.Sprintf("%s %d", stamp, year), p.opts.loc)
	if err != nil || ts.Sub(now) > 24*time.Hour {
		// Feb 29 only parses in a leap year, so retry before giving up.
		ts, err = time.ParseInLocation(syslogTimeLayout, fmt.Sprintf("%s %d", stamp, year-1), p.opts.loc)
		if err != nil {
			return time.Time{}, err
		}
	}
	return ts.UTC(), nil
}

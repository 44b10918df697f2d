package parser

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"logwarden/internal/types"
)

const accessTimeLayout = "02/Jan/2006:15:04:05 -0700"

// WebAccessParser parses Nginx/Apache Common and Combined Log Format.
// Format: 1.2.3.4 - user [01/Jan/2026:12:00:00 +0000] "GET /path HTTP/1.1" 200 123 "-" "UserAgent"
// Everything after the quoted request is optional.
type WebAccessParser struct {
	re *regexp.Regexp
}

func NewWebAccessParser() *WebAccessParser {
	// 1=IP, 2=Time, 3=Request, 4=Status, 5=Size, 6=Ref, 7=UA
	return &WebAccessParser{
		re: regexp.MustCompile(`^\s*(\S+)\s+\S+\s+\S+\s+\[([^\]]+)\]\s+"([^"]+)"(?:\s+([^\s"]+))?(?:\s+([^\s"]+))?(?:\s+"([^"]*)")?(?:\s+"([^"]*)")?\s*$`),
	}
}

func (p *WebAccessParser) Parse(line string) (types.Event, error) {
	idx := p.re.FindStringSubmatchIndex(line)
	if idx == nil {
		return types.Event{}, fail(types.SourceWebAccess, line, ErrNoMatch)
	}
	group := func(n int) (string, bool) {
		if idx[2*n] < 0 {
			return "", false
		}
		return line[idx[2*n]:idx[2*n+1]], true
	}

	ip, _ := group(1)
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return types.Event{}, fail(types.SourceWebAccess, line, ErrAddress)
	}

	stamp, _ := group(2)
	ts, err := time.Parse(accessTimeLayout, collapseSpace(stamp))
	if err != nil {
		return types.Event{}, fail(types.SourceWebAccess, line, ErrTimestamp)
	}

	request, _ := group(3)
	request = strings.TrimSpace(request)
	if request == "" {
		return types.Event{}, fail(types.SourceWebAccess, line, ErrNoMatch)
	}

	status, _ := group(4)
	evt := types.Event{
		Timestamp:  ts.UTC(),
		Source:     types.SourceWebAccess,
		Origin:     addr.Unmap(),
		Request:    &request,
		StatusCode: parseStatus(status),
		Raw:        line,
	}

	// A lone trailing quoted field is the referer; the user agent is the second one.
	if ua, ok := group(7); ok {
		ua = strings.TrimSpace(ua)
		evt.UserAgent = &ua
	}

	return evt, nil
}

// parseStatus returns 0 for a missing, "-" or non-numeric status
func parseStatus(s string) uint16 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RequestPath extracts the target from a request line such as "GET /a?b=1 HTTP/1.1"
func RequestPath(request string) string {
	fields := strings.Fields(request)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	default:
		return fields[1]
	}
}

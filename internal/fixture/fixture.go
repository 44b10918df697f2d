// Package fixture generates realistic records and raw log lines for tests and
// for seeding a store.
package fixture

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"logwarden/internal/types"
)

var (
	methods  = []string{"GET", "GET", "GET", "POST", "PUT", "DELETE", "HEAD"}
	statuses = []uint16{200, 200, 200, 201, 204, 301, 304, 400, 401, 403, 404, 500}
	paths    = []string{"/", "/index.html", "/login", "/api/v1/users", "/wp-login.php", "/admin", "/static/app.js"}
)

// Generator produces deterministic data for a given seed
type Generator struct {
	faker *gofakeit.Faker
	base  time.Time
}

// New returns a generator. Timestamps are spread backwards from base.
func New(seed int64, base time.Time) *Generator {
	return &Generator{
		faker: gofakeit.New(seed),
		base:  base.UTC().Truncate(time.Second),
	}
}

func (g *Generator) origin() netip.Addr {
	addr, err := netip.ParseAddr(g.faker.IPv4Address())
	if err != nil {
		return netip.AddrFrom4([4]byte{203, 0, 113, byte(g.faker.Number(1, 254))})
	}
	return addr
}

func (g *Generator) timestamp() time.Time {
	return g.base.Add(-time.Duration(g.faker.Number(0, 86400)) * time.Second)
}

// WebRecord returns a parsed web access record
func (g *Generator) WebRecord() types.Record {
	request := fmt.Sprintf("%s %s HTTP/1.1", g.faker.RandomString(methods), g.faker.RandomString(paths))
	ua := g.faker.UserAgent()
	ev := types.Event{
		Timestamp:  g.timestamp(),
		Source:     types.SourceWebAccess,
		Origin:     g.origin(),
		Request:    &request,
		StatusCode: statuses[g.faker.Number(0, len(statuses)-1)],
		UserAgent:  &ua,
	}
	ev.Raw = AccessLine(ev)
	return types.Record{Event: ev}
}

// AuthRecord returns an sshd record. Failures carry the given disposition.
func (g *Generator) AuthRecord(disposition types.Disposition) types.Record {
	user := g.faker.Username()
	outcome := types.OutcomeFailed
	if g.faker.Number(0, 4) == 0 {
		outcome = types.OutcomeSucceeded
		disposition = types.NotEvaluated
	}
	ev := types.Event{
		Timestamp: g.timestamp(),
		Source:    types.SourceAuthLog,
		Origin:    g.origin(),
		Identity:  &user,
		Outcome:   outcome,
	}
	ev.Raw = AuthLine(ev, g.faker.Number(1024, 65535))
	return types.Record{Event: ev, Disposition: disposition}
}

// Records returns n records mixing web and auth sources
func (g *Generator) Records(n int) []types.Record {
	recs := make([]types.Record, 0, n)
	for i := 0; i < n; i++ {
		switch g.faker.Number(0, 3) {
		case 0:
			recs = append(recs, g.AuthRecord(types.Allowed))
		case 1:
			recs = append(recs, g.AuthRecord(types.Flagged))
		default:
			recs = append(recs, g.WebRecord())
		}
	}
	return recs
}

// AccessLine renders ev in nginx combined log format
func AccessLine(ev types.Event) string {
	return fmt.Sprintf(`%s - - [%s] "%s" %d %d "-" "%s"`,
		ev.OriginString(),
		ev.Timestamp.Format("02/Jan/2006:15:04:05 -0700"),
		types.StringValue(ev.Request),
		ev.StatusCode,
		512,
		types.StringValue(ev.UserAgent),
	)
}

// AuthLine renders ev as an OpenSSH password line in syslog format
func AuthLine(ev types.Event, port int) string {
	verb := "Failed"
	if ev.Outcome == types.OutcomeSucceeded {
		verb = "Accepted"
	}
	return fmt.Sprintf("%s server sshd[%d]: %s password for %s from %s port %d ssh2",
		ev.Timestamp.Format(time.Stamp),
		1000+port%9000,
		verb,
		types.StringValue(ev.Identity),
		ev.OriginString(),
		port,
	)
}

// Package notify fans flagged brute-force attempts out to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"logwarden/internal/logging"
	"logwarden/internal/metrics"
	"logwarden/internal/types"
)

// Alert is the payload delivered for one flagged attempt
type Alert struct {
	Time        time.Time `json:"time"`
	SourceIP    string    `json:"source_ip"`
	User        string    `json:"user,omitempty"`
	Service     string    `json:"service"`
	ThreatLevel string    `json:"threat_level"`
	Raw         string    `json:"raw"`
}

// NewAlert builds the payload for rec
func NewAlert(rec types.Record) Alert {
	return Alert{
		Time:        rec.Event.Timestamp.UTC(),
		SourceIP:    rec.Event.OriginString(),
		User:        types.StringValue(rec.Event.Identity),
		Service:     "sshd",
		ThreatLevel: string(rec.Risk()),
		Raw:         rec.Event.Raw,
	}
}

// Summary is a one-line human readable description
func (a Alert) Summary() string {
	user := a.User
	if user == "" {
		user = "unknown user"
	}
	return fmt.Sprintf("brute force from %s against %s (%s) at %s",
		a.SourceIP, user, a.Service, a.Time.Format(time.RFC3339))
}

// Notifier delivers alerts to one channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// Allowlist matches trusted origins by address or CIDR prefix
type Allowlist struct {
	prefixes []netip.Prefix
}

// ParseAllowlist accepts addresses ("10.0.0.1") and prefixes ("10.0.0.0/8")
func ParseAllowlist(entries []string) (*Allowlist, error) {
	var errs []error
	al := &Allowlist{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				errs = append(errs, fmt.Errorf("allowlist entry %q: %w", e, err))
				continue
			}
			al.prefixes = append(al.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("allowlist entry %q: %w", e, err))
			continue
		}
		addr = addr.Unmap()
		al.prefixes = append(al.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return al, errors.Join(errs...)
}

// Contains reports whether addr is trusted
func (a *Allowlist) Contains(addr netip.Addr) bool {
	if a == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Broker delivers flagged records to every notifier unless the origin is allowlisted.
// Allowlisted origins are still detected and stored; they are only never notified.
type Broker struct {
	mu        sync.RWMutex
	allowlist *Allowlist
	notifiers []Notifier
	logger    *slog.Logger
}

// NewBroker creates a new alert broker
func NewBroker(allowlist *Allowlist, logger *slog.Logger, notifiers ...Notifier) *Broker {
	return &Broker{
		allowlist: allowlist,
		notifiers: notifiers,
		logger:    logging.OrDefault(logger),
	}
}

// UpdateAllowlist swaps the allowlist, e.g. after a configuration reload
func (b *Broker) UpdateAllowlist(al *Allowlist) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowlist = al
}

// Dispatch notifies about rec if it was flagged. Delivery errors of all
// notifiers are joined; a failing notifier does not stop the others.
func (b *Broker) Dispatch(ctx context.Context, rec types.Record) error {
	if rec.Disposition != types.Flagged {
		return nil
	}

	b.mu.RLock()
	allowed := b.allowlist.Contains(rec.Event.Origin)
	b.mu.RUnlock()
	if allowed {
		b.logger.Info("alert suppressed by allowlist", logging.IP(rec.Event.OriginString()))
		return nil
	}

	alert := NewAlert(rec)
	var errs []error
	for _, n := range b.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			metrics.AlertsSent.WithLabelValues(n.Name(), "error").Inc()
			b.logger.Warn("alert delivery failed",
				slog.String("notifier", n.Name()), logging.IP(alert.SourceIP), logging.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		metrics.AlertsSent.WithLabelValues(n.Name(), "ok").Inc()
	}
	return errors.Join(errs...)
}

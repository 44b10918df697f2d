package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"logwarden/internal/logging"
)

// publisher is the subset of *nats.Conn used here
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes alerts as JSON on a subject
type NATSPublisher struct {
	conn    publisher
	subject string
}

// NewNATSPublisher connects with unlimited reconnects
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logging.OrDefault(logger)
	conn, err := nats.Connect(url,
		nats.Name("logwarden"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Name() string {
	return "nats"
}

func (p *NATSPublisher) Notify(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.conn.Publish(p.subject, data)
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

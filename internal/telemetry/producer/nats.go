package producer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"chabaqa/backend/internal/telemetry/domain"
)

// publisher is the subset of *nats.Conn the producer uses.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSProducer publishes events on "<prefix>.<event type>", e.g. chabaqa.auth.login.succeeded.
type NATSProducer struct {
	conn   publisher
	prefix string
}

// NewNATSProducer connects to url. Returns nil, nil when url is empty, which disables the sink.
func NewNATSProducer(url, prefix string) (*NATSProducer, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url,
		nats.Name("chabaqa-auth"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("telemetry: nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSProducer{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject an event of the given type is published on.
func (p *NATSProducer) Subject(eventType string) string {
	prefix := strings.TrimSuffix(p.prefix, ".")
	if prefix == "" {
		prefix = "chabaqa"
	}
	return prefix + "." + eventType
}

// Emit publishes the JSON-encoded event. Publish is buffered by the client; ctx is only checked up front.
func (p *NATSProducer) Emit(ctx context.Context, event *domain.Event) error {
	if p == nil || p.conn == nil || event == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(event.Type), payload); err != nil {
		slog.Warn("telemetry: nats emit failed", "event_type", event.Type, "error", err)
		return err
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATSProducer) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

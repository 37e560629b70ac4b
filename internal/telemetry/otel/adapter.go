package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"chabaqa/backend/internal/telemetry"
	"chabaqa/backend/internal/telemetry/domain"
)

const instrumentationName = "chabaqa.auth.events"

// recordEmitter is the part of an OTel Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends auth events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger wraps any record sink; tests use it to capture records.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record. The event type is the body; identifiers are attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(event.Type))
	rec.SetSeverity(severityFor(event.Type))
	rec.AddAttributes(otellog.String("event_type", event.Type))
	addIfSet(&rec, "event_id", event.ID)
	addIfSet(&rec, "user_id", event.UserID)
	addIfSet(&rec, "session_id", event.SessionID)
	addIfSet(&rec, "client_ip", event.IP)
	addIfSet(&rec, "source", event.Source)
	for k, v := range event.Metadata {
		addIfSet(&rec, "meta."+k, v)
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func addIfSet(rec *otellog.Record, key, value string) {
	if value != "" {
		rec.AddAttributes(otellog.String(key, value))
	}
}

func severityFor(eventType string) otellog.Severity {
	switch eventType {
	case domain.EventRefreshReuse, domain.EventTwoFactorLocked:
		return otellog.SeverityWarn
	case domain.EventLoginFailed, domain.EventTwoFactorFailed:
		return otellog.SeverityInfo2
	default:
		return otellog.SeverityInfo
	}
}

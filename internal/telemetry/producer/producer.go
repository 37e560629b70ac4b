// Package producer publishes auth events to message brokers (Kafka, NATS).
package producer

import (
	"context"
	"encoding/json"

	"chabaqa/backend/internal/telemetry/domain"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.Event) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}

func encode(event *domain.Event) ([]byte, error) {
	return json.Marshal(event)
}

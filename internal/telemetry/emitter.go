package telemetry

import (
	"context"
	"errors"

	"chabaqa/backend/internal/telemetry/domain"
)

// EventEmitter emits auth events (e.g. to OTel Logs, Kafka, NATS). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Fanout sends each event to every non-nil emitter and joins their errors.
type Fanout []EventEmitter

// Emit forwards event to all emitters. One failing sink does not stop the others.
func (f Fanout) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package wl

import (
	"context"

	"go.opentelemetry.io/otel"
)

// EntityLoader reconstructs an entity by reading its stream and rendering
// the records through the reducer table.
type EntityLoader[T any] struct {
	Store    EventStore
	Renderer *Renderer[T]
}

func (l *EntityLoader[T]) Load(ctx context.Context, stream StreamID) (Entity[T], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "load entity")
	defer span.End()

	events, err := l.Store.ReadStream(ctx, stream, 0)
	if err != nil {
		return Entity[T]{}, err
	}

	return l.Renderer.Render(ctx, stream, events)
}

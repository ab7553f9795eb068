package wl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

type Reducers[T any] map[EventType]Reducer[T]

// Renderer folds a stream's records into an entity, starting from the
// state's zero value and applying each record in sequence order. Rendering
// is deterministic: the same records always yield the same state.
type Renderer[T any] struct {
	Reducers Reducers[T]
}

func (r *Renderer[T]) Render(ctx context.Context, stream StreamID, events []RecordedEvent) (Entity[T], error) {
	var state T

	_, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("render %s", NameOf(state)))
	defer span.End()

	for _, event := range events {
		reducer := r.Reducers[event.EventType]
		if nil == reducer {
			// an unmapped event type is schema drift, not noise
			return Entity[T]{}, &UnknownEventTypeError{Stream: stream, Type: event.EventType}
		}

		if err := reducer.Reduce(&state, &event); err != nil {
			return Entity[T]{}, errors.Wrapf(err, "failed to reduce %s at %s#%d", event.EventType, stream, event.SequenceNumber)
		}
	}

	return Entity[T]{
		Stream:  stream,
		Version: CurrentVersion(events),
		Type:    EntityTypeOf(state),
		State:   &state,
	}, nil
}

package wl

import (
	"context"

	"github.com/pkg/errors"
)

// EventStore is the append-only ledger. Implementations must make the
// version check atomic with the append, assign global positions from a
// single monotonic counter, and only expose records once they are durably
// committed.
type EventStore interface {
	// Append commits events to a stream. When expected is checked it must
	// equal the stream's current highest sequence number (0 for a stream
	// that does not exist yet) or the append fails with ConflictError and
	// commits nothing. Sequence numbers are assigned contiguously from
	// expected+1 and the committed records are returned.
	Append(ctx context.Context, stream StreamID, expected ExpectedVersion, events ...ProposedEvent) ([]RecordedEvent, error)

	// ReadStream returns a stream's records in sequence order, starting at
	// fromVersion (exclusive; 0 reads from the beginning). An unknown
	// stream yields an empty slice, not an error.
	ReadStream(ctx context.Context, stream StreamID, fromVersion uint64) ([]RecordedEvent, error)

	// ReadAll returns up to limit records across all streams ordered by
	// global position, starting at fromPosition (inclusive). A limit <= 0
	// applies the store default.
	ReadAll(ctx context.Context, fromPosition uint64, limit int) ([]RecordedEvent, error)

	// Subscribe delivers records in global position order starting at
	// fromPosition (inclusive), catching up from the ledger and then
	// following live commits. Delivery is at-least-once.
	Subscribe(ctx context.Context, fromPosition uint64) (Subscription, error)
}

type Subscription interface {
	// Events yields records in ascending global position order. The channel
	// closes when the subscription ends; check Err afterwards.
	Events() <-chan RecordedEvent
	Err() error
	Close() error
}

// RequireStream reads a stream that must exist. Callers creating a new
// stream should use ReadStream instead and treat empty as version 0.
func RequireStream(ctx context.Context, store EventStore, stream StreamID) ([]RecordedEvent, error) {
	events, err := store.ReadStream(ctx, stream, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &StreamNotFoundError{Stream: stream}
	}
	return events, nil
}

// CurrentVersion derives a stream's version from its records.
func CurrentVersion(events []RecordedEvent) uint64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].SequenceNumber
}

func ValidateProposed(stream StreamID, events []ProposedEvent) error {
	if stream == "" {
		return errors.New("append requires a stream id")
	}
	if len(events) == 0 {
		return errors.Errorf("attempted to append an empty list of events to %s", stream)
	}
	for i, event := range events {
		if event.Type == "" {
			return errors.Errorf("proposed event %d for %s is missing an event type", i, stream)
		}
		if len(event.Data.Data) == 0 {
			return errors.Errorf("proposed event %d for %s has no payload", i, stream)
		}
	}
	return nil
}

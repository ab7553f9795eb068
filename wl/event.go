package wl

import (
	"github.com/pkg/errors"
)

type StreamID string

func (id StreamID) String() string {
	return string(id)
}

type EventType string

func (et EventType) String() string {
	return string(et)
}

type EventID string

func (id EventID) String() string {
	return string(id)
}

type Data struct {
	Encoding string `json:"encoding"`
	Data     []byte `json:"data"`
}

// Metadata travels with a recorded event. The correlation and causation
// identifiers use reserved keys so that stores can persist the map as-is.
type Metadata map[string]string

const (
	CorrelationIDKey = "correlation-id"
	CausationIDKey   = "causation-id"
)

func (m Metadata) CorrelationID() string {
	return m[CorrelationIDKey]
}

func (m Metadata) CausationID() string {
	return m[CausationIDKey]
}

type DomainEvent any

func EventTypeOf(event DomainEvent) EventType {
	return EventType(NameOf(event))
}

// RecordedEvent is a committed entry in the ledger. Sequence numbers are
// contiguous and start at 1 within a stream; global positions start at 1 and
// provide a total order across all streams. Records are immutable once
// appended.
type RecordedEvent struct {
	StreamID       StreamID  `json:"stream"`
	SequenceNumber uint64    `json:"sequence"`
	GlobalPosition uint64    `json:"position"`
	EventID        EventID   `json:"id"`
	EventType      EventType `json:"type"`
	Data           Data      `json:"data"`
	OccurredAt     Timestamp `json:"occurredAt"`
	Metadata       Metadata  `json:"metadata,omitempty"`
}

// EventKey identifies a recorded event. Two records are the same event when
// their keys are equal.
type EventKey struct {
	Stream   StreamID
	Sequence uint64
}

func (e *RecordedEvent) Key() EventKey {
	return EventKey{Stream: e.StreamID, Sequence: e.SequenceNumber}
}

func (e *RecordedEvent) Validate() error {
	if e.StreamID == "" {
		return errors.New("recorded event is missing a stream id")
	}
	if e.SequenceNumber < 1 {
		return errors.Errorf("recorded event for %s has sequence number %d, expected >= 1", e.StreamID, e.SequenceNumber)
	}
	if e.EventType == "" {
		return errors.Errorf("recorded event %s#%d is missing an event type", e.StreamID, e.SequenceNumber)
	}
	if len(e.Data.Data) == 0 {
		return errors.Errorf("recorded event %s#%d has no payload", e.StreamID, e.SequenceNumber)
	}

	return nil
}

// ProposedEvent is an event awaiting commit. The store assigns sequence
// numbers, global positions and identifiers at append time.
type ProposedEvent struct {
	Type     EventType `json:"type"`
	Data     Data      `json:"data"`
	Metadata Metadata  `json:"metadata,omitempty"`
}

// Propose marshals a domain event into a ProposedEvent, deriving the event
// type from the value's name.
func Propose(event DomainEvent, options ...ProposeOption) (ProposedEvent, error) {
	data, err := MarshalToData(event)
	if err != nil {
		return ProposedEvent{}, errors.Wrapf(err, "failed to marshal %s", EventTypeOf(event))
	}

	proposed := ProposedEvent{
		Type: EventTypeOf(event),
		Data: data,
	}

	for _, option := range options {
		option(&proposed)
	}

	return proposed, nil
}

type ProposeOption func(*ProposedEvent)

func WithCorrelationID(id string) ProposeOption {
	return func(proposed *ProposedEvent) {
		if proposed.Metadata == nil {
			proposed.Metadata = Metadata{}
		}
		proposed.Metadata[CorrelationIDKey] = id
	}
}

func WithCausationID(correlationID string, causationID EventID) ProposeOption {
	return func(proposed *ProposedEvent) {
		if proposed.Metadata == nil {
			proposed.Metadata = Metadata{}
		}
		proposed.Metadata[CorrelationIDKey] = correlationID
		proposed.Metadata[CausationIDKey] = causationID.String()
	}
}

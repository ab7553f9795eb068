// Package natsrelay fans committed records out to NATS JetStream for
// consumers outside the process. Delivery is at-least-once; the record's
// event id doubles as the JetStream message id so redeliveries deduplicate
// server-side.
package natsrelay

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/wl"
)

const subjectPrefix = "ledger.events."

type RelayOption func(*Relay)

func WithLogger(logger *zerolog.Logger) RelayOption {
	return func(relay *Relay) {
		relay.log = logger
	}
}

// WithCheckpoints resumes the relay from a durable cursor instead of the
// beginning of the ledger.
func WithCheckpoints(name string, checkpoints projection.Checkpoints) RelayOption {
	return func(relay *Relay) {
		relay.name = name
		relay.checkpoints = checkpoints
	}
}

func NewRelay(name string, connection *nats.Conn, store wl.EventStore, options ...RelayOption) (*Relay, error) {
	stream, err := connection.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open jetstream context")
	}

	_, err = stream.AddStream(&nats.StreamConfig{
		Name:        name,
		Description: "committed ledger records for " + name,
		Subjects:    []string{subjectPrefix + ">"},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to ensure stream %s", name)
	}

	relay := &Relay{
		name:   name,
		store:  store,
		stream: stream,
	}

	for _, option := range options {
		option(relay)
	}

	if relay.log == nil {
		relay.log = &log.Logger
	}

	return relay, nil
}

type Relay struct {
	name        string
	store       wl.EventStore
	stream      nats.JetStreamContext
	checkpoints projection.Checkpoints
	log         *zerolog.Logger
}

func subject(stream wl.StreamID) string {
	return subjectPrefix + stream.String()
}

// Run republishes committed records until the context ends. With
// checkpoints configured the relay resumes where it left off; without them
// it replays from the start and relies on message id deduplication.
func (r *Relay) Run(ctx context.Context) error {
	var position uint64
	if r.checkpoints != nil {
		loaded, err := r.checkpoints.Load(ctx, r.name)
		if err != nil {
			return err
		}
		position = loaded
	}

	sub, err := r.store.Subscribe(ctx, position+1)
	if err != nil {
		return err
	}
	defer sub.Close()

	for record := range sub.Events() {
		if err := r.publish(ctx, record); err != nil {
			return err
		}

		if r.checkpoints != nil {
			if err := r.checkpoints.Save(ctx, r.name, record.GlobalPosition); err != nil {
				return err
			}
		}
	}

	if err := sub.Err(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (r *Relay) publish(ctx context.Context, record wl.RecordedEvent) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal record %s#%d", record.StreamID, record.SequenceNumber)
	}

	_, err = r.stream.Publish(
		subject(record.StreamID),
		payload,
		nats.Context(ctx),
		nats.MsgId(record.EventID.String()),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to relay record %s#%d", record.StreamID, record.SequenceNumber)
	}

	r.log.Debug().
		Str("stream", record.StreamID.String()).
		Uint64("position", record.GlobalPosition).
		Msg("relayed record")

	return nil
}

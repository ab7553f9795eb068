// Package memory provides an in-process event store. It backs tests and
// single-node deployments; the ledger is lost when the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/weegigs/wee-ledger-go/wl"
)

type StoreOption func(*Store)

func WithClock(clock wl.Clock) StoreOption {
	return func(store *Store) {
		store.clock = clock
	}
}

func WithIDGenerator(ids wl.IDGenerator) StoreOption {
	return func(store *Store) {
		store.ids = ids
	}
}

func NewStore(options ...StoreOption) *Store {
	store := &Store{
		streams: map[wl.StreamID][]int{},
	}
	store.grown = sync.NewCond(&store.mu)

	for _, option := range options {
		option(store)
	}

	if store.clock == nil {
		store.clock = wl.SystemClock{}
	}
	if store.ids == nil {
		store.ids = wl.NewIDGenerator(store.clock)
	}

	return store
}

type Store struct {
	mu    sync.Mutex
	grown *sync.Cond

	// log holds every committed record in global position order; streams
	// indexes into it per stream. Positions are log index + 1.
	log     []wl.RecordedEvent
	streams map[wl.StreamID][]int

	clock wl.Clock
	ids   wl.IDGenerator
}

func (s *Store) Append(ctx context.Context, stream wl.StreamID, expected wl.ExpectedVersion, events ...wl.ProposedEvent) ([]wl.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := wl.ValidateProposed(stream, events); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := uint64(len(s.streams[stream]))
	if expected.Checked() && uint64(expected) != current {
		return nil, wl.Conflict(stream, expected, current)
	}

	timestamp := wl.TimestampFromTime(s.clock.Now())
	committed := make([]wl.RecordedEvent, len(events))

	for i, event := range events {
		record := wl.RecordedEvent{
			StreamID:       stream,
			SequenceNumber: current + uint64(i) + 1,
			GlobalPosition: uint64(len(s.log)) + 1,
			EventID:        s.ids.NewEventID(),
			EventType:      event.Type,
			Data:           event.Data,
			OccurredAt:     timestamp,
			Metadata:       event.Metadata,
		}

		s.streams[stream] = append(s.streams[stream], len(s.log))
		s.log = append(s.log, record)
		committed[i] = record
	}

	s.grown.Broadcast()

	return committed, nil
}

func (s *Store) ReadStream(ctx context.Context, stream wl.StreamID, fromVersion uint64) ([]wl.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := s.streams[stream]
	var events []wl.RecordedEvent
	for _, index := range indexes {
		record := s.log[index]
		if record.SequenceNumber > fromVersion {
			events = append(events, record)
		}
	}

	return events, nil
}

func (s *Store) ReadAll(ctx context.Context, fromPosition uint64, limit int) ([]wl.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultReadAllLimit
	}
	if fromPosition == 0 {
		fromPosition = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := int(fromPosition - 1)
	if start >= len(s.log) {
		return nil, nil
	}

	end := start + limit
	if end > len(s.log) {
		end = len(s.log)
	}

	events := make([]wl.RecordedEvent, end-start)
	copy(events, s.log[start:end])

	return events, nil
}

const defaultReadAllLimit = 256

func (s *Store) Subscribe(ctx context.Context, fromPosition uint64) (wl.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fromPosition == 0 {
		fromPosition = 1
	}

	sub := &subscription{
		store: s,
		next:  fromPosition,
		out:   make(chan wl.RecordedEvent),
		done:  make(chan struct{}),
	}

	go sub.run(ctx)

	return sub, nil
}

// waitFor blocks until the log length reaches at least want or the
// subscription is cancelled, returning the current length.
func (s *Store) waitFor(want uint64, cancelled func() bool) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uint64(len(s.log)) < want {
		if cancelled() {
			return 0, false
		}
		s.grown.Wait()
	}

	return uint64(len(s.log)), true
}

type subscription struct {
	store *Store
	next  uint64
	out   chan wl.RecordedEvent
	done  chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (s *subscription) Events() <-chan wl.RecordedEvent {
	return s.out
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		// wake the run loop if it is parked on the condition
		s.store.mu.Lock()
		s.store.grown.Broadcast()
		s.store.mu.Unlock()
	})
	return nil
}

func (s *subscription) cancelled(ctx context.Context) func() bool {
	return func() bool {
		select {
		case <-ctx.Done():
			return true
		case <-s.done:
			return true
		default:
			return false
		}
	}
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.out)

	stop := context.AfterFunc(ctx, func() {
		s.store.mu.Lock()
		s.store.grown.Broadcast()
		s.store.mu.Unlock()
	})
	defer stop()

	for {
		length, ok := s.store.waitFor(s.next, s.cancelled(ctx))
		if !ok {
			s.mu.Lock()
			s.err = ctx.Err()
			s.mu.Unlock()
			return
		}

		for s.next <= length {
			events, err := s.store.ReadAll(ctx, s.next, defaultReadAllLimit)
			if err != nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				return
			}

			for i := range events {
				select {
				case s.out <- events[i]:
					s.next = events[i].GlobalPosition + 1
				case <-ctx.Done():
					s.mu.Lock()
					s.err = ctx.Err()
					s.mu.Unlock()
					return
				case <-s.done:
					return
				}
			}
		}
	}
}

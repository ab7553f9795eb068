package wl

import (
	"context"
	"sync"
	"time"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultPollBatch    = 256
)

type PollOption func(*pollingSubscription)

// Contiguous holds delivery at the first gap in global positions until the
// missing record appears. Stores that assign positions without holes use it
// to mask eventually consistent reads; a record visible ahead of its
// predecessor is withheld rather than delivered out of order.
func Contiguous() PollOption {
	return func(sub *pollingSubscription) {
		sub.contiguous = true
	}
}

// Poll adapts a store without native change notification into a
// Subscription by paging ReadAll and sleeping between empty reads. Records
// are delivered in global position order, at-least-once.
func Poll(ctx context.Context, store EventStore, fromPosition uint64, interval time.Duration, options ...PollOption) Subscription {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	sub := &pollingSubscription{
		out:  make(chan RecordedEvent),
		done: make(chan struct{}),
	}

	for _, option := range options {
		option(sub)
	}

	go sub.run(ctx, store, fromPosition, interval)

	return sub
}

type pollingSubscription struct {
	out        chan RecordedEvent
	done       chan struct{}
	contiguous bool

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (s *pollingSubscription) Events() <-chan RecordedEvent {
	return s.out
}

func (s *pollingSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pollingSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *pollingSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *pollingSubscription) run(ctx context.Context, store EventStore, from uint64, interval time.Duration) {
	defer close(s.out)

	next := from
	if next == 0 {
		next = 1
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		case <-s.done:
			return
		case <-timer.C:
		}

		events, err := store.ReadAll(ctx, next, defaultPollBatch)
		if err != nil {
			s.fail(err)
			return
		}

		stalled := false
		for i := range events {
			if s.contiguous && events[i].GlobalPosition != next {
				// the predecessor has not surfaced yet; re-poll for it
				stalled = true
				break
			}

			select {
			case s.out <- events[i]:
				next = events[i].GlobalPosition + 1
			case <-ctx.Done():
				s.fail(ctx.Err())
				return
			case <-s.done:
				return
			}
		}

		if stalled {
			timer.Reset(interval)
			continue
		}

		if len(events) == defaultPollBatch {
			// more may be waiting, read again immediately
			timer.Reset(0)
		} else {
			timer.Reset(interval)
		}
	}
}

package wl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// laggedStore serves a global feed in which a committed record surfaces
// later than its successor, the way an eventually consistent index can.
type laggedStore struct {
	mu      sync.Mutex
	visible []RecordedEvent
	lagged  []RecordedEvent
	reads   int
}

func (s *laggedStore) Append(ctx context.Context, stream StreamID, expected ExpectedVersion, events ...ProposedEvent) ([]RecordedEvent, error) {
	panic("not used")
}

func (s *laggedStore) ReadStream(ctx context.Context, stream StreamID, fromVersion uint64) ([]RecordedEvent, error) {
	panic("not used")
}

func (s *laggedStore) Subscribe(ctx context.Context, fromPosition uint64) (Subscription, error) {
	panic("not used")
}

func (s *laggedStore) ReadAll(ctx context.Context, fromPosition uint64, limit int) ([]RecordedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.reads == 2 {
		// the feed converges on the second read
		s.visible = append(s.visible, s.lagged...)
		s.lagged = nil
		sortByPosition(s.visible)
	}

	var page []RecordedEvent
	for _, event := range s.visible {
		if event.GlobalPosition >= fromPosition {
			page = append(page, event)
		}
	}

	return page, nil
}

func sortByPosition(events []RecordedEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].GlobalPosition < events[j-1].GlobalPosition; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

func positioned(position uint64) RecordedEvent {
	return RecordedEvent{
		StreamID:       "lagged-1",
		SequenceNumber: position,
		GlobalPosition: position,
		EventType:      "wl:test-event",
		Data:           Data{Encoding: JSONEncoding, Data: []byte("{}")},
	}
}

func TestContiguousPollHoldsAtGaps(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := &laggedStore{
		visible: []RecordedEvent{positioned(1), positioned(3)},
		lagged:  []RecordedEvent{positioned(2)},
	}

	sub := Poll(ctx, store, 1, 5*time.Millisecond, Contiguous())
	defer sub.Close()

	var seen []uint64
	for event := range sub.Events() {
		seen = append(seen, event.GlobalPosition)
		if len(seen) == 3 {
			break
		}
	}

	assert.Equal(t, []uint64{1, 2, 3}, seen)
}

func TestPollDeliversInPositionOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := &laggedStore{
		visible: []RecordedEvent{positioned(1), positioned(2), positioned(3)},
	}

	sub := Poll(ctx, store, 2, 5*time.Millisecond)
	defer sub.Close()

	first, ok := <-sub.Events()
	require.True(t, ok)
	assert.EqualValues(t, 2, first.GlobalPosition)

	second, ok := <-sub.Events()
	require.True(t, ok)
	assert.EqualValues(t, 3, second.GlobalPosition)
}

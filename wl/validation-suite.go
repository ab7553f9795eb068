package wl

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// NewStoreValidationSuite exercises the EventStore contract against an
// implementation. Every store package runs the same suite.
func NewStoreValidationSuite(ctx context.Context, store EventStore) *StoreValidationSuite {
	return &StoreValidationSuite{
		store: store,
		ctx:   ctx,
		faker: faker.New(),
	}
}

type StoreValidationSuite struct {
	store EventStore
	ctx   context.Context
	faker faker.Faker
}

type storeValidationEvent struct {
	TestStringValue string `json:"test_string_value"`
	TestIntValue    int    `json:"test_int_value"`
}

func (s *StoreValidationSuite) Run(t *testing.T) {
	t.Run("reads an unknown stream as empty", s.ReadsUnknownStreamAsEmpty)
	t.Run("appends a single event", s.AppendsSingleEvent)
	t.Run("appends multiple events contiguously", s.AppendsMultipleEvents)
	t.Run("rejects an empty append", s.RejectsEmptyAppend)
	t.Run("conflicts on a stale initial version", s.ConflictOnInitialVersion)
	t.Run("conflicts on a stale subsequent version", s.ConflictOnSubsequentVersion)
	t.Run("admits exactly one concurrent writer", s.SingleWriterWins)
	t.Run("never shrinks or reorders a stream", s.AppendOnly)
	t.Run("orders all records by global position", s.GlobalOrder)
	t.Run("resumes reads from a position", s.ResumesFromPosition)
	t.Run("delivers committed records to subscribers", s.DeliversToSubscribers)
	t.Run("carries metadata through the ledger", s.CarriesMetadata)
}

func (s *StoreValidationSuite) MakeStreamID() StreamID {
	return StreamID("go-test." + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

func (s *StoreValidationSuite) MakeEvent() ProposedEvent {
	event, err := Propose(storeValidationEvent{
		TestStringValue: s.faker.Lorem().Sentence(10),
		TestIntValue:    s.faker.Int(),
	})
	if err != nil {
		panic(err)
	}

	return event
}

func (s *StoreValidationSuite) MakeEvents(count int) []ProposedEvent {
	events := make([]ProposedEvent, count)
	for i := 0; i < count; i++ {
		events[i] = s.MakeEvent()
	}

	return events
}

func (s *StoreValidationSuite) ReadsUnknownStreamAsEmpty(t *testing.T) {
	events, err := s.store.ReadStream(s.ctx, s.MakeStreamID(), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func (s *StoreValidationSuite) AppendsSingleEvent(t *testing.T) {
	stream := s.MakeStreamID()

	committed, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvent())
	require.NoError(t, err)
	require.Len(t, committed, 1)

	assert.Equal(t, stream, committed[0].StreamID)
	assert.EqualValues(t, 1, committed[0].SequenceNumber)
	assert.NotZero(t, committed[0].GlobalPosition)
	assert.NotEmpty(t, committed[0].EventID)
	assert.NoError(t, committed[0].Validate())
}

func (s *StoreValidationSuite) AppendsMultipleEvents(t *testing.T) {
	stream := s.MakeStreamID()

	committed, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvents(17)...)
	require.NoError(t, err)
	require.Len(t, committed, 17)

	for i, event := range committed {
		assert.EqualValues(t, i+1, event.SequenceNumber)
	}

	read, err := s.store.ReadStream(s.ctx, stream, 0)
	require.NoError(t, err)
	require.Len(t, read, 17)
	for i, event := range read {
		assert.EqualValues(t, i+1, event.SequenceNumber)
	}
}

func (s *StoreValidationSuite) RejectsEmptyAppend(t *testing.T) {
	_, err := s.store.Append(s.ctx, s.MakeStreamID(), NoStream)
	assert.Error(t, err)
}

func (s *StoreValidationSuite) ConflictOnInitialVersion(t *testing.T) {
	stream := s.MakeStreamID()

	_, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvent())
	require.NoError(t, err)

	_, err = s.store.Append(s.ctx, stream, NoStream, s.MakeEvent())
	require.Error(t, err)
	require.True(t, IsConflict(err))

	conflict := err.(*ConflictError)
	assert.EqualValues(t, 1, conflict.Actual)
}

func (s *StoreValidationSuite) ConflictOnSubsequentVersion(t *testing.T) {
	stream := s.MakeStreamID()

	_, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvent())
	require.NoError(t, err)

	_, err = s.store.Append(s.ctx, stream, Exactly(1), s.MakeEvent())
	require.NoError(t, err)

	_, err = s.store.Append(s.ctx, stream, Exactly(1), s.MakeEvent())
	require.Error(t, err)
	require.True(t, IsConflict(err))

	conflict := err.(*ConflictError)
	assert.EqualValues(t, 2, conflict.Actual)
}

func (s *StoreValidationSuite) SingleWriterWins(t *testing.T) {
	stream := s.MakeStreamID()

	_, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvent())
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.store.Append(s.ctx, stream, Exactly(1), s.MakeEvent())
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected append failure: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicted)
}

func (s *StoreValidationSuite) AppendOnly(t *testing.T) {
	stream := s.MakeStreamID()

	_, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvents(3)...)
	require.NoError(t, err)

	first, err := s.store.ReadStream(s.ctx, stream, 0)
	require.NoError(t, err)

	_, err = s.store.Append(s.ctx, stream, Exactly(3), s.MakeEvents(2)...)
	require.NoError(t, err)

	second, err := s.store.ReadStream(s.ctx, stream, 0)
	require.NoError(t, err)

	require.Len(t, second, 5)
	for i, event := range first {
		assert.Equal(t, event.Key(), second[i].Key())
		assert.Equal(t, event.EventID, second[i].EventID)
	}
}

func (s *StoreValidationSuite) GlobalOrder(t *testing.T) {
	streams := []StreamID{s.MakeStreamID(), s.MakeStreamID(), s.MakeStreamID()}
	for _, stream := range streams {
		_, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvents(4)...)
		require.NoError(t, err)
	}

	all, err := s.store.ReadAll(s.ctx, 1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	var last uint64
	for _, event := range all {
		assert.Greater(t, event.GlobalPosition, last)
		last = event.GlobalPosition
	}
}

func (s *StoreValidationSuite) ResumesFromPosition(t *testing.T) {
	stream := s.MakeStreamID()

	committed, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvents(3)...)
	require.NoError(t, err)

	resume := committed[1].GlobalPosition
	all, err := s.store.ReadAll(s.ctx, resume, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	assert.Equal(t, resume, all[0].GlobalPosition)
}

func (s *StoreValidationSuite) DeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	stream := s.MakeStreamID()

	before, err := s.store.Append(ctx, stream, NoStream, s.MakeEvent())
	require.NoError(t, err)

	sub, err := s.store.Subscribe(ctx, before[0].GlobalPosition)
	require.NoError(t, err)
	defer sub.Close()

	after, err := s.store.Append(ctx, stream, Exactly(1), s.MakeEvent())
	require.NoError(t, err)

	expected := []EventKey{before[0].Key(), after[0].Key()}
	var seen []EventKey
	var last uint64

	for event := range sub.Events() {
		assert.Greater(t, event.GlobalPosition, last)
		last = event.GlobalPosition

		if event.StreamID == stream {
			seen = append(seen, event.Key())
		}
		if len(seen) == len(expected) {
			break
		}
	}

	assert.Equal(t, expected, seen)
}

func (s *StoreValidationSuite) CarriesMetadata(t *testing.T) {
	stream := s.MakeStreamID()

	first, err := s.store.Append(s.ctx, stream, NoStream, s.MakeEvent())
	require.NoError(t, err)

	correlation := "command/" + first[0].EventID.String()
	event, err := Propose(storeValidationEvent{TestStringValue: "caused"},
		WithCausationID(correlation, first[0].EventID))
	require.NoError(t, err)

	second, err := s.store.Append(s.ctx, stream, Exactly(1), event)
	require.NoError(t, err)

	assert.Equal(t, correlation, second[0].Metadata.CorrelationID())
	assert.Equal(t, first[0].EventID.String(), second[0].Metadata.CausationID())
}

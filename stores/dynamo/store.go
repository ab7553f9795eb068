// Package dynamo persists the ledger in DynamoDB. Each stream keeps a head
// item whose version is the compare-and-swap target; events and the global
// position counter are written in the same transaction, so a conflicting
// writer is rejected by the conditional check rather than blocked by a lock.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/weegigs/wee-ledger-go/wl"
)

type TableName string

func (name TableName) String() string {
	return string(name)
}

const (
	headSortKey    = "head"
	eventSortKey   = "event#"
	counterHashKey = "ledger"
	counterSortKey = "position-counter"
	positionIndex  = "position-index"
	ledgerMarker   = "ledger"
)

type StoreOption func(*Store)

func WithClock(clock wl.Clock) StoreOption {
	return func(store *Store) {
		store.clock = clock
	}
}

func WithPollInterval(interval time.Duration) StoreOption {
	return func(store *Store) {
		store.pollInterval = interval
	}
}

func NewStore(db *dynamodb.Client, table TableName, options ...StoreOption) *Store {
	store := &Store{db: db, table: table.String()}

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
	db           *dynamodb.Client
	table        string
	clock        wl.Clock
	ids          wl.IDGenerator
	pollInterval time.Duration
}

type eventItem struct {
	PartitionKey string            `dynamodbav:"pk"`
	SortKey      string            `dynamodbav:"sk"`
	LedgerMarker string            `dynamodbav:"gp"`
	Position     uint64            `dynamodbav:"position"`
	StreamID     string            `dynamodbav:"stream_id"`
	Sequence     uint64            `dynamodbav:"sequence"`
	EventID      string            `dynamodbav:"event_id"`
	EventType    string            `dynamodbav:"event_type"`
	Encoding     string            `dynamodbav:"encoding"`
	Payload      []byte            `dynamodbav:"payload"`
	Metadata     map[string]string `dynamodbav:"metadata,omitempty"`
	OccurredAt   string            `dynamodbav:"occurred_at"`
}

type headItem struct {
	PartitionKey string `dynamodbav:"pk"`
	SortKey      string `dynamodbav:"sk"`
	Version      uint64 `dynamodbav:"version"`
	Position     uint64 `dynamodbav:"position"`
	UpdatedAt    string `dynamodbav:"updated_at"`
}

type counterItem struct {
	PartitionKey string `dynamodbav:"pk"`
	SortKey      string `dynamodbav:"sk"`
	Value        uint64 `dynamodbav:"value"`
}

func partitionKey(stream wl.StreamID) string {
	return "stream#" + stream.String()
}

func eventSort(sequence uint64) string {
	return fmt.Sprintf("%s%020d", eventSortKey, sequence)
}

func (ds *Store) Append(ctx context.Context, stream wl.StreamID, expected wl.ExpectedVersion, events ...wl.ProposedEvent) ([]wl.RecordedEvent, error) {
	if err := wl.ValidateProposed(stream, events); err != nil {
		return nil, err
	}

	var committed []wl.RecordedEvent

	// the position counter is shared across streams, so a writer can lose
	// the counter condition to a writer of an unrelated stream; only that
	// race is retried here, a head conflict surfaces immediately
	err := retry.Do(
		func() error {
			attempt, err := ds.append(ctx, stream, expected, events)
			if err != nil {
				return err
			}

			committed = attempt
			return nil
		},
		retry.Context(ctx),
		retry.RetryIf(isPositionRace),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	return committed, nil
}

func (ds *Store) append(ctx context.Context, stream wl.StreamID, expected wl.ExpectedVersion, events []wl.ProposedEvent) ([]wl.RecordedEvent, error) {
	position, err := ds.readCounter(ctx)
	if err != nil {
		return nil, err
	}

	current, err := ds.readVersion(ctx, stream)
	if err != nil {
		return nil, err
	}

	if expected.Checked() && uint64(expected) != current {
		return nil, wl.Conflict(stream, expected, current)
	}

	timestamp := wl.TimestampFromTime(ds.clock.Now())
	committed := make([]wl.RecordedEvent, len(events))
	items := make([]types.TransactWriteItem, 0, len(events)+2)

	counter, err := ds.counterWrite(position, position+uint64(len(events)))
	if err != nil {
		return nil, err
	}
	items = append(items, counter)

	head, err := ds.headWrite(stream, current, current+uint64(len(events)), position+uint64(len(events)), timestamp)
	if err != nil {
		return nil, err
	}
	items = append(items, head)

	for i, event := range events {
		record := wl.RecordedEvent{
			StreamID:       stream,
			SequenceNumber: current + uint64(i) + 1,
			GlobalPosition: position + uint64(i) + 1,
			EventID:        ds.ids.NewEventID(),
			EventType:      event.Type,
			Data:           event.Data,
			OccurredAt:     timestamp,
			Metadata:       event.Metadata,
		}
		committed[i] = record

		item, err := attributevalue.MarshalMap(eventItem{
			PartitionKey: partitionKey(stream),
			SortKey:      eventSort(record.SequenceNumber),
			LedgerMarker: ledgerMarker,
			Position:     record.GlobalPosition,
			StreamID:     record.StreamID.String(),
			Sequence:     record.SequenceNumber,
			EventID:      record.EventID.String(),
			EventType:    record.EventType.String(),
			Encoding:     record.Data.Encoding,
			Payload:      record.Data.Data,
			Metadata:     record.Metadata,
			OccurredAt:   record.OccurredAt.String(),
		})
		if err != nil {
			return nil, err
		}

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				Item:      item,
				TableName: aws.String(ds.table),
			},
		})
	}

	_, err = ds.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return nil, ds.classifyTransactFailure(ctx, err, stream, expected)
	}

	return committed, nil
}

// counterWrite advances the global position counter, conditional on the
// value read at the start of the append.
func (ds *Store) counterWrite(read uint64, next uint64) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(counterItem{
		PartitionKey: counterHashKey,
		SortKey:      counterSortKey,
		Value:        next,
	})
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	condition := expression.Name("value").Equal(expression.Value(read))
	if read == 0 {
		condition = condition.Or(expression.AttributeNotExists(expression.Name("pk")))
	}

	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	return types.TransactWriteItem{
		Put: &types.Put{
			Item:                      item,
			TableName:                 aws.String(ds.table),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// headWrite replaces the stream head, conditional on the version read at
// the start of the append. This is the single-writer-per-stream
// serialization point.
func (ds *Store) headWrite(stream wl.StreamID, read uint64, version uint64, position uint64, timestamp wl.Timestamp) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(headItem{
		PartitionKey: partitionKey(stream),
		SortKey:      headSortKey,
		Version:      version,
		Position:     position,
		UpdatedAt:    timestamp.String(),
	})
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	condition := expression.Name("version").Equal(expression.Value(read))
	if read == 0 {
		condition = condition.Or(expression.AttributeNotExists(expression.Name("pk")))
	}

	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	return types.TransactWriteItem{
		Put: &types.Put{
			Item:                      item,
			TableName:                 aws.String(ds.table),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

func (ds *Store) readCounter(ctx context.Context) (uint64, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": counterHashKey, "sk": counterSortKey})
	if err != nil {
		return 0, err
	}

	out, err := ds.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}
	if out.Item == nil {
		return 0, nil
	}

	var counter counterItem
	if err := attributevalue.UnmarshalMap(out.Item, &counter); err != nil {
		return 0, err
	}

	return counter.Value, nil
}

func (ds *Store) readVersion(ctx context.Context, stream wl.StreamID) (uint64, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": partitionKey(stream), "sk": headSortKey})
	if err != nil {
		return 0, err
	}

	out, err := ds.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}
	if out.Item == nil {
		return 0, nil
	}

	var head headItem
	if err := attributevalue.UnmarshalMap(out.Item, &head); err != nil {
		return 0, err
	}

	return head.Version, nil
}

// positionRaceError marks a transaction cancelled by the counter condition
// rather than the stream head; the append is retried with fresh reads.
type positionRaceError struct {
	cause error
}

func (e *positionRaceError) Error() string {
	return "lost the global position race: " + e.cause.Error()
}

func isPositionRace(err error) bool {
	var race *positionRaceError
	return errors.As(err, &race)
}

func (ds *Store) classifyTransactFailure(ctx context.Context, err error, stream wl.StreamID, expected wl.ExpectedVersion) error {
	cancelled := transactionCancellation(err)
	if cancelled == nil {
		return err
	}

	// item order matches the transaction: counter, head, events
	reasons := cancelled.CancellationReasons
	if len(reasons) > 1 && conditionalCheckFailed(reasons[1]) {
		if !expected.Checked() {
			// an unchecked append lost the head race to another writer,
			// not a version conflict; retry with fresh reads
			return &positionRaceError{cause: err}
		}

		actual, readErr := ds.readVersion(ctx, stream)
		if readErr != nil {
			actual = 0
		}
		return wl.Conflict(stream, expected, actual)
	}
	if len(reasons) > 0 && conditionalCheckFailed(reasons[0]) {
		return &positionRaceError{cause: err}
	}

	return err
}

func conditionalCheckFailed(reason types.CancellationReason) bool {
	return reason.Code != nil && *reason.Code == "ConditionalCheckFailed"
}

func transactionCancellation(err error) *types.TransactionCanceledException {
	var oe *smithy.OperationError
	if errors.As(err, &oe) {
		var re *awshttp.ResponseError
		if errors.As(oe.Unwrap(), &re) {
			var tc *types.TransactionCanceledException
			if errors.As(re.Unwrap(), &tc) {
				return tc
			}
		}
	}

	var tc *types.TransactionCanceledException
	if errors.As(err, &tc) {
		return tc
	}

	return nil
}

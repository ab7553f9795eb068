package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/weegigs/wee-ledger-go/wl"
)

const defaultReadAllLimit = 256

func (ds *Store) ReadStream(ctx context.Context, stream wl.StreamID, fromVersion uint64) ([]wl.RecordedEvent, error) {
	query := expression.Key("pk").Equal(expression.Value(partitionKey(stream))).And(
		expression.Key("sk").Between(
			expression.Value(eventSort(fromVersion+1)),
			expression.Value(eventSortKey+"~"),
		),
	)

	expr, err := expression.NewBuilder().WithKeyCondition(query).Build()
	if err != nil {
		return nil, err
	}

	var events []wl.RecordedEvent
	var start map[string]types.AttributeValue
	for {
		out, err := ds.db.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(ds.table),
			ExclusiveStartKey:         start,
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			KeyConditionExpression:    expr.KeyCondition(),
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return nil, err
		}

		page, err := unmarshalEvents(out.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)

		start = out.LastEvaluatedKey
		if start == nil {
			break
		}
	}

	return events, nil
}

func (ds *Store) ReadAll(ctx context.Context, fromPosition uint64, limit int) ([]wl.RecordedEvent, error) {
	if limit <= 0 {
		limit = defaultReadAllLimit
	}
	if fromPosition == 0 {
		fromPosition = 1
	}

	query := expression.Key("gp").Equal(expression.Value(ledgerMarker)).And(
		expression.Key("position").GreaterThanEqual(expression.Value(fromPosition)),
	)

	expr, err := expression.NewBuilder().WithKeyCondition(query).Build()
	if err != nil {
		return nil, err
	}

	var events []wl.RecordedEvent
	var start map[string]types.AttributeValue
	for len(events) < limit {
		out, err := ds.db.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(ds.table),
			IndexName:                 aws.String(positionIndex),
			ExclusiveStartKey:         start,
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			KeyConditionExpression:    expr.KeyCondition(),
			Limit:                     aws.Int32(int32(limit - len(events))),
		})
		if err != nil {
			return nil, err
		}

		page, err := unmarshalEvents(out.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)

		start = out.LastEvaluatedKey
		if start == nil {
			break
		}
	}

	return events, nil
}

func (ds *Store) Subscribe(ctx context.Context, fromPosition uint64) (wl.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// positions are contiguous by construction, but the position index is
	// eventually consistent; hold delivery rather than jump a gap
	return wl.Poll(ctx, ds, fromPosition, ds.pollInterval, wl.Contiguous()), nil
}

func unmarshalEvents(items []map[string]types.AttributeValue) ([]wl.RecordedEvent, error) {
	var rows []eventItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, err
	}

	events := make([]wl.RecordedEvent, len(rows))
	for i, row := range rows {
		events[i] = wl.RecordedEvent{
			StreamID:       wl.StreamID(row.StreamID),
			SequenceNumber: row.Sequence,
			GlobalPosition: row.Position,
			EventID:        wl.EventID(row.EventID),
			EventType:      wl.EventType(row.EventType),
			Data:           wl.Data{Encoding: row.Encoding, Data: row.Payload},
			OccurredAt:     wl.Timestamp(row.OccurredAt),
			Metadata:       wl.Metadata(row.Metadata),
		}
	}

	return events, nil
}

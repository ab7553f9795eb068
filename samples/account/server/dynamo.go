package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/weegigs/wee-ledger-go/stores/dynamo"
	"github.com/weegigs/wee-ledger-go/support"
)

func dynamoStore(ctx context.Context, cfg support.Config) (*dynamo.Store, error) {
	if cfg.DynamoTable == "" {
		return nil, errors.New("LEDGER_DYNAMODB_TABLE is not set")
	}

	aws, err := support.AWSConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws configuration")
	}

	client := dynamo.Client(aws)
	if err := dynamo.EnsureTable(ctx, client, dynamo.TableName(cfg.DynamoTable)); err != nil {
		return nil, err
	}

	return dynamo.NewStore(client, dynamo.TableName(cfg.DynamoTable)), nil
}

package dynamo

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/wire"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/weegigs/wee-ledger-go/wl"
)

var Live = wire.NewSet(
	DefaultAWSConfig,
	Client,
	LiveTableName,
	ProvideStore,
	wire.Bind(new(wl.EventStore), new(*Store)),
)

var Test = wire.NewSet(
	TestStore,
	wire.Bind(new(wl.EventStore), new(*Store)),
)

func Client(cfg aws.Config) *dynamodb.Client {
	otelaws.AppendMiddlewares(&cfg.APIOptions)
	return dynamodb.NewFromConfig(cfg)
}

func ProvideStore(db *dynamodb.Client, table TableName) *Store {
	return NewStore(db, table)
}

func LiveTableName() (TableName, error) {
	table := os.Getenv("LEDGER_DYNAMODB_TABLE")
	if len(table) == 0 {
		return "", errors.New("LEDGER_DYNAMODB_TABLE is not set")
	}

	return TableName(table), nil
}

func DefaultAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

// Package support holds process-level wiring helpers shared by services
// built on the ledger.
package support

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/caarlos0/env/v11"
)

// Config is read from the environment. StoreDriver selects the ledger
// backend: memory, sqlite, or dynamo.
type Config struct {
	StoreDriver  string `env:"LEDGER_STORE" envDefault:"memory"`
	SQLitePath   string `env:"LEDGER_SQLITE_PATH" envDefault:"ledger.db"`
	DynamoTable  string `env:"LEDGER_DYNAMODB_TABLE"`
	NATSUrl      string `env:"LEDGER_NATS_URL"`
	HTTPAddr     string `env:"LEDGER_HTTP_ADDR" envDefault:":8080"`
	TraceConsole bool   `env:"LEDGER_TRACE_CONSOLE"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func AWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

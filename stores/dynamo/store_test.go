package dynamo_test

import (
	"context"
	"testing"

	"github.com/weegigs/wee-ledger-go/stores/dynamo"
	"github.com/weegigs/wee-ledger-go/wl"
)

func TestDynamoStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping dynamodb-local container test in short mode")
	}

	ctx := context.Background()

	store, teardown, err := dynamo.TestStore(ctx)
	if err != nil {
		t.Fatalf("failed to initiate test store: %+v", err)
	}
	defer teardown()

	wl.NewStoreValidationSuite(ctx, store).Run(t)
}

package memory_test

import (
	"context"
	"testing"

	"github.com/weegigs/wee-ledger-go/stores/memory"
	"github.com/weegigs/wee-ledger-go/wl"
)

func TestMemoryStoreContract(t *testing.T) {
	store := memory.NewStore()
	wl.NewStoreValidationSuite(context.Background(), store).Run(t)
}

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/stores/sqlite"
	"github.com/weegigs/wee-ledger-go/wl"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.Open(
		filepath.Join(t.TempDir(), "ledger.db"),
		sqlite.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	store := openTestStore(t)
	wl.NewStoreValidationSuite(context.Background(), store).Run(t)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := sqlite.Open(path)
	require.NoError(t, err)

	type opened struct {
		Name string `json:"name"`
	}

	event, err := wl.Propose(opened{Name: "durable"})
	require.NoError(t, err)

	committed, err := store.Append(ctx, "acct-1", wl.NoStream, event)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.ReadStream(ctx, "acct-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, committed[0].Key(), events[0].Key())
	assert.Equal(t, committed[0].GlobalPosition, events[0].GlobalPosition)
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	checkpoints := sqlite.NewCheckpoints(store)

	position, err := checkpoints.Load(ctx, "balances")
	require.NoError(t, err)
	assert.Zero(t, position)

	require.NoError(t, checkpoints.Save(ctx, "balances", 42))
	require.NoError(t, checkpoints.Save(ctx, "balances", 43))

	position, err = checkpoints.Load(ctx, "balances")
	require.NoError(t, err)
	assert.EqualValues(t, 43, position)
}

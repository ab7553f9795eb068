package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/stores/memory"
	"github.com/weegigs/wee-ledger-go/wl"
)

func TestBalancesProjection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	service := CreateAccountService(store)
	runner := NewBalancesRunner(store, projection.NewMemoryCheckpoints())

	running := make(chan error, 1)
	go func() {
		running <- runner.Run(ctx)
	}()

	first := accountStream()
	second := accountStream()

	_, err := service.Execute(ctx, first, OpenAccount{Owner: "ada", InitialBalance: 100})
	require.NoError(t, err)
	_, err = service.Execute(ctx, first, Deposit{Amount: 50})
	require.NoError(t, err)
	_, err = service.Execute(ctx, second, OpenAccount{Owner: "bob", InitialBalance: 20})
	require.NoError(t, err)

	result, err := service.Execute(ctx, second, Withdraw{Amount: 5})
	require.NoError(t, err)

	require.NoError(t, runner.Wait(ctx, result.CommittedPosition, 5*time.Second))

	err = runner.Read(func(model *Balances) error {
		assert.Equal(t, int64(165), model.Total)
		assert.Equal(t, int64(150), model.Accounts[first].Balance)
		assert.Equal(t, "ada", model.Accounts[first].Owner)
		assert.Equal(t, int64(15), model.Accounts[second].Balance)
		assert.True(t, model.Accounts[second].Open)
		return nil
	})
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-running)
}

func TestBalancesHandlersIgnoreRedelivery(t *testing.T) {
	handlers := BalancesHandlers()
	model := &Balances{}

	opened, err := wl.MarshalToData(Opened{Owner: "ada", InitialBalance: 100})
	require.NoError(t, err)

	record := &wl.RecordedEvent{
		StreamID:       "account-redelivery",
		SequenceNumber: 1,
		GlobalPosition: 1,
		EventType:      wl.EventTypeOf(Opened{}),
		Data:           opened,
	}

	handler := handlers[record.EventType]
	require.NotNil(t, handler)

	require.NoError(t, handler.Apply(model, record))
	require.NoError(t, handler.Apply(model, record))

	assert.Equal(t, int64(100), model.Total)
	assert.Equal(t, int64(100), model.Accounts["account-redelivery"].Balance)
}

func TestBalancesViewNarrowsToAccount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	service := CreateAccountService(store)
	runner := NewBalancesRunner(store, projection.NewMemoryCheckpoints())

	go func() { _ = runner.Run(ctx) }()

	stream := accountStream()
	result, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 42})
	require.NoError(t, err)
	require.NoError(t, runner.Wait(ctx, result.CommittedPosition, 5*time.Second))

	view := BalancesView(runner)

	snapshot, err := view.Snapshot(ctx, map[string]string{"account": stream.String()})
	require.NoError(t, err)

	entry, ok := snapshot.(BalanceEntry)
	require.True(t, ok)
	assert.Equal(t, int64(42), entry.Balance)
	assert.Equal(t, "ada", entry.Owner)

	snapshot, err = view.Snapshot(ctx, map[string]string{"account": "account-missing"})
	require.NoError(t, err)
	entry, ok = snapshot.(BalanceEntry)
	require.True(t, ok)
	assert.Equal(t, int64(0), entry.Balance)
	assert.False(t, entry.Open)
}

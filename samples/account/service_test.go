package account

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/stores/memory"
	"github.com/weegigs/wee-ledger-go/wl"
)

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

func accountStream() wl.StreamID {
	return wl.StreamID("account-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

type test = func(t *testing.T)

func loadsUnopenedAccount(service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()

		entity, err := service.Load(ctx, accountStream())
		require.NoError(t, err)

		assert.False(t, entity.Initialized())
		assert.Equal(t, uint64(0), entity.Version)
		assert.False(t, entity.State.Open)
	}
}

func opensAccount(service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()
		stream := accountStream()

		result, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 100})
		require.NoError(t, err)

		assert.Equal(t, uint64(1), result.CommittedVersion)
		assert.Equal(t, uint64(1), result.Entity.Version)
		assert.True(t, result.Entity.State.Open)
		assert.Equal(t, "ada", result.Entity.State.Owner)
		assert.Equal(t, int64(100), result.Entity.State.Balance)
	}
}

func depositsIntoAccount(service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()
		stream := accountStream()

		_, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 100})
		require.NoError(t, err)

		result, err := service.Execute(ctx, stream, Deposit{Amount: 50})
		require.NoError(t, err)

		assert.Equal(t, uint64(2), result.CommittedVersion)
		assert.Equal(t, int64(150), result.Entity.State.Balance)
	}
}

func withdrawsWithinBalance(service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()
		stream := accountStream()

		_, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 100})
		require.NoError(t, err)

		result, err := service.Execute(ctx, stream, Withdraw{Amount: 30})
		require.NoError(t, err)
		assert.Equal(t, int64(70), result.Entity.State.Balance)

		_, err = service.Execute(ctx, stream, Withdraw{Amount: 71})
		require.Error(t, err)
		assert.True(t, wl.IsDomainError(err))
	}
}

func rejectsCommandsOnClosedAccount(service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()
		stream := accountStream()

		_, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 10})
		require.NoError(t, err)

		closeResult, err := service.Execute(ctx, stream, CloseAccount{})
		require.NoError(t, err)
		assert.True(t, closeResult.Entity.State.Closed)
		assert.False(t, closeResult.Entity.State.Open)

		_, err = service.Execute(ctx, stream, Deposit{Amount: 5})
		require.Error(t, err)
		assert.True(t, wl.IsDomainError(err))

		_, err = service.Execute(ctx, stream, OpenAccount{Owner: "bob", InitialBalance: 1})
		require.Error(t, err)
		assert.True(t, wl.IsDomainError(err))
	}
}

func rejectsUnknownCommand(service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()

		type Freeze struct{}
		_, err := service.Execute(ctx, accountStream(), Freeze{})
		require.Error(t, err)

		var notFound *wl.CommandNotFoundError
		assert.ErrorAs(t, err, &notFound)
	}
}

func surfacesStaleVersion(store wl.EventStore, service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()
		stream := accountStream()

		_, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 100})
		require.NoError(t, err)

		_, err = service.Execute(ctx, stream, Deposit{Amount: 50})
		require.NoError(t, err)

		event, err := wl.Propose(Deposited{Amount: 5})
		require.NoError(t, err)

		_, err = store.Append(ctx, stream, wl.Exactly(1), event)
		require.Error(t, err)
		assert.True(t, wl.IsConflict(err))

		var conflict *wl.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, uint64(2), conflict.Actual)
	}
}

func retriesThroughInterleavedWriter(store wl.EventStore, service wl.CommandService[Account]) test {
	return func(t *testing.T) {
		ctx := context.TODO()
		stream := accountStream()

		_, err := service.Execute(ctx, stream, OpenAccount{Owner: "ada", InitialBalance: 100})
		require.NoError(t, err)

		// both writers observe version 1; the loser must reload and retry
		done := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				_, err := service.Execute(ctx, stream, Deposit{Amount: 25})
				done <- err
			}()
		}
		for i := 0; i < 2; i++ {
			require.NoError(t, <-done)
		}

		entity, err := service.Load(ctx, stream)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), entity.Version)
		assert.Equal(t, int64(150), entity.State.Balance)
	}
}

func TestAccountService(t *testing.T) {
	store := memory.NewStore()
	service := CreateAccountService(store)

	t.Run("loads an unopened account", loadsUnopenedAccount(service))
	t.Run("opens an account", opensAccount(service))
	t.Run("deposits into an account", depositsIntoAccount(service))
	t.Run("withdraws within the balance", withdrawsWithinBalance(service))
	t.Run("rejects commands on a closed account", rejectsCommandsOnClosedAccount(service))
	t.Run("rejects an unknown command", rejectsUnknownCommand(service))
	t.Run("surfaces a stale expected version", surfacesStaleVersion(store, service))
	t.Run("retries through an interleaved writer", retriesThroughInterleavedWriter(store, service))
}

package account

import (
	"github.com/google/wire"

	"github.com/weegigs/wee-ledger-go/stores/dynamo"
	"github.com/weegigs/wee-ledger-go/wl"
)

func CreateAccountDescriptor() wl.ServiceDescriptor[Account] {
	reducers := map[wl.EventType]func() wl.Reducer[Account]{
		wl.EventTypeOf(Opened{}):    opened,
		wl.EventTypeOf(Deposited{}): deposited,
		wl.EventTypeOf(Withdrawn{}): withdrawn,
		wl.EventTypeOf(Closed{}):    closed,
	}

	handlers := map[wl.CommandName]func() wl.CommandHandler[Account]{
		wl.CommandNameOf(OpenAccount{}):  open,
		wl.CommandNameOf(Deposit{}):      deposit,
		wl.CommandNameOf(Withdraw{}):     withdraw,
		wl.CommandNameOf(CloseAccount{}): closeAccount,
	}

	return wl.ServiceDescriptor[Account]{
		Reducers: reducers,
		Handlers: handlers,
	}
}

func CreateAccountService(store wl.EventStore) wl.CommandService[Account] {
	return wl.NewCommandService(store, CreateAccountDescriptor())
}

var Live = wire.NewSet(
	CreateAccountService,
	dynamo.Live,
)

var Local = wire.NewSet(
	CreateAccountService,
	dynamo.Test,
)

package account

import (
	"context"

	"github.com/weegigs/wee-ledger-go/wl"
)

// command handlers are pure decisions: they inspect state, enforce the
// rules, and propose events; the service commits them.

func open() wl.CommandHandler[Account] {
	var handler wl.CommandHandlerFunction[Account, OpenAccount] = func(ctx context.Context, cmd OpenAccount, state wl.Entity[Account]) ([]wl.ProposedEvent, error) {
		if state.State.Open || state.State.Closed {
			return nil, wl.Violation("account-already-opened", "account %s has already been opened", state.Stream)
		}
		if cmd.Owner == "" {
			return nil, wl.Violation("owner-required", "an account requires an owner")
		}
		if cmd.InitialBalance < 0 {
			return nil, wl.Violation("negative-opening-balance", "opening balance %d is negative", cmd.InitialBalance)
		}

		event, err := wl.Propose(Opened{Owner: cmd.Owner, InitialBalance: cmd.InitialBalance})
		if err != nil {
			return nil, err
		}

		return []wl.ProposedEvent{event}, nil
	}

	return handler
}

func deposit() wl.CommandHandler[Account] {
	var handler wl.CommandHandlerFunction[Account, Deposit] = func(ctx context.Context, cmd Deposit, state wl.Entity[Account]) ([]wl.ProposedEvent, error) {
		if !state.State.Open {
			return nil, wl.Violation("account-not-open", "account %s is not open", state.Stream)
		}
		if cmd.Amount <= 0 {
			return nil, wl.Violation("non-positive-amount", "deposit amount %d must be positive", cmd.Amount)
		}

		event, err := wl.Propose(Deposited{Amount: cmd.Amount})
		if err != nil {
			return nil, err
		}

		return []wl.ProposedEvent{event}, nil
	}

	return handler
}

func withdraw() wl.CommandHandler[Account] {
	var handler wl.CommandHandlerFunction[Account, Withdraw] = func(ctx context.Context, cmd Withdraw, state wl.Entity[Account]) ([]wl.ProposedEvent, error) {
		if !state.State.Open {
			return nil, wl.Violation("account-not-open", "account %s is not open", state.Stream)
		}
		if cmd.Amount <= 0 {
			return nil, wl.Violation("non-positive-amount", "withdrawal amount %d must be positive", cmd.Amount)
		}
		if cmd.Amount > state.State.Balance {
			return nil, wl.Violation("insufficient-funds", "withdrawal of %d exceeds balance %d", cmd.Amount, state.State.Balance)
		}

		event, err := wl.Propose(Withdrawn{Amount: cmd.Amount})
		if err != nil {
			return nil, err
		}

		return []wl.ProposedEvent{event}, nil
	}

	return handler
}

func closeAccount() wl.CommandHandler[Account] {
	var handler wl.CommandHandlerFunction[Account, CloseAccount] = func(ctx context.Context, cmd CloseAccount, state wl.Entity[Account]) ([]wl.ProposedEvent, error) {
		if !state.State.Open {
			return nil, wl.Violation("account-not-open", "account %s is not open", state.Stream)
		}

		event, err := wl.Propose(Closed{RemainingBalance: state.State.Balance})
		if err != nil {
			return nil, err
		}

		return []wl.ProposedEvent{event}, nil
	}

	return handler
}

package account

import "github.com/weegigs/wee-ledger-go/wl"

// reducers fold events into state; they carry no validation, the events
// already happened.

func opened() wl.Reducer[Account] {
	var reducer wl.ReducerFunction[Account, Opened] = func(account *Account, evt *Opened) error {
		account.Owner = evt.Owner
		account.Balance = evt.InitialBalance
		account.Open = true
		return nil
	}

	return reducer
}

func deposited() wl.Reducer[Account] {
	var reducer wl.ReducerFunction[Account, Deposited] = func(account *Account, evt *Deposited) error {
		account.Balance = account.Balance + evt.Amount
		return nil
	}

	return reducer
}

func withdrawn() wl.Reducer[Account] {
	var reducer wl.ReducerFunction[Account, Withdrawn] = func(account *Account, evt *Withdrawn) error {
		account.Balance = account.Balance - evt.Amount
		return nil
	}

	return reducer
}

func closed() wl.Reducer[Account] {
	var reducer wl.ReducerFunction[Account, Closed] = func(account *Account, evt *Closed) error {
		account.Open = false
		account.Closed = true
		return nil
	}

	return reducer
}

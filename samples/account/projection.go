package account

import (
	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/wl"
)

const BalancesProjection = "account-balances"

// BalanceEntry is the per-account row of the balances read model.
type BalanceEntry struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
	Open    bool   `json:"open"`

	// applied is the stream sequence of the most recent record folded into
	// this entry, making re-delivery after a crash a no-op.
	applied uint64
}

// Balances summarizes every account from the event ledger. Totals tracks the
// aggregate balance across open accounts.
type Balances struct {
	Accounts map[wl.StreamID]BalanceEntry `json:"accounts"`
	Total    int64                        `json:"total"`
}

func (b *Balances) entry(record *wl.RecordedEvent) (BalanceEntry, bool) {
	if b.Accounts == nil {
		b.Accounts = map[wl.StreamID]BalanceEntry{}
	}

	entry := b.Accounts[record.StreamID]
	if record.SequenceNumber <= entry.applied {
		return entry, false
	}

	entry.applied = record.SequenceNumber
	return entry, true
}

func BalancesHandlers() projection.Handlers[Balances] {
	var onOpened projection.HandlerFunction[Balances, Opened] = func(model *Balances, evt *Opened, record *wl.RecordedEvent) error {
		entry, fresh := model.entry(record)
		if !fresh {
			return nil
		}

		entry.Owner = evt.Owner
		entry.Balance = evt.InitialBalance
		entry.Open = true

		model.Accounts[record.StreamID] = entry
		model.Total = model.Total + evt.InitialBalance
		return nil
	}

	var onDeposited projection.HandlerFunction[Balances, Deposited] = func(model *Balances, evt *Deposited, record *wl.RecordedEvent) error {
		entry, fresh := model.entry(record)
		if !fresh {
			return nil
		}

		entry.Balance = entry.Balance + evt.Amount

		model.Accounts[record.StreamID] = entry
		model.Total = model.Total + evt.Amount
		return nil
	}

	var onWithdrawn projection.HandlerFunction[Balances, Withdrawn] = func(model *Balances, evt *Withdrawn, record *wl.RecordedEvent) error {
		entry, fresh := model.entry(record)
		if !fresh {
			return nil
		}

		entry.Balance = entry.Balance - evt.Amount

		model.Accounts[record.StreamID] = entry
		model.Total = model.Total - evt.Amount
		return nil
	}

	var onClosed projection.HandlerFunction[Balances, Closed] = func(model *Balances, evt *Closed, record *wl.RecordedEvent) error {
		entry, fresh := model.entry(record)
		if !fresh {
			return nil
		}

		entry.Open = false

		model.Accounts[record.StreamID] = entry
		return nil
	}

	return projection.Handlers[Balances]{
		wl.EventTypeOf(Opened{}):    onOpened,
		wl.EventTypeOf(Deposited{}): onDeposited,
		wl.EventTypeOf(Withdrawn{}): onWithdrawn,
		wl.EventTypeOf(Closed{}):    onClosed,
	}
}

// NewBalancesRunner wires the balances read model to a ledger. Callers own
// the runner's lifecycle.
func NewBalancesRunner(store wl.EventStore, checkpoints projection.Checkpoints, options ...projection.RunnerOption[Balances]) *projection.Runner[Balances] {
	return projection.NewRunner(BalancesProjection, store, checkpoints, &Balances{}, BalancesHandlers(), options...)
}

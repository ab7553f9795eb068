package account

import (
	"context"

	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/query"
	"github.com/weegigs/wee-ledger-go/wl"
)

// BalancesView snapshots the balances read model. With an "account"
// parameter it narrows to a single entry; unknown accounts resolve to an
// empty entry rather than an error, the account simply has no history yet.
func BalancesView(runner *projection.Runner[Balances]) query.View {
	var view query.ViewFunction = func(ctx context.Context, params map[string]string) (any, error) {
		if account, ok := params["account"]; ok {
			var entry BalanceEntry
			err := runner.Read(func(model *Balances) error {
				entry = model.Accounts[wl.StreamID(account)]
				return nil
			})
			if err != nil {
				return nil, err
			}

			return entry, nil
		}

		snapshot := Balances{Accounts: map[wl.StreamID]BalanceEntry{}}
		err := runner.Read(func(model *Balances) error {
			snapshot.Total = model.Total
			for stream, entry := range model.Accounts {
				snapshot.Accounts[stream] = entry
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		return snapshot, nil
	}

	return view
}

// RegisterViews exposes the sample's read models on a registry.
func RegisterViews(registry *query.Registry, balances *projection.Runner[Balances]) {
	registry.Register(BalancesProjection, BalancesView(balances))
}

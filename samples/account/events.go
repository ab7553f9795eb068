package account

// Opened, Deposited, Withdrawn and Closed derive their event types from
// their names: account:opened, account:deposited, and so on.

type Opened struct {
	Owner          string `json:"owner"`
	InitialBalance int64  `json:"initialBalance"`
}

type Deposited struct {
	Amount int64 `json:"amount"`
}

type Withdrawn struct {
	Amount int64 `json:"amount"`
}

type Closed struct {
	RemainingBalance int64 `json:"remainingBalance"`
}

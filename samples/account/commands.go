package account

type OpenAccount struct {
	Owner          string `json:"owner"`
	InitialBalance int64  `json:"initialBalance"`
}

type Deposit struct {
	Amount int64 `json:"amount"`
}

type Withdraw struct {
	Amount int64 `json:"amount"`
}

type CloseAccount struct{}

// Package account is a worked example: a bank account aggregate with a
// balance projection, exercising the full command → ledger → projection →
// query pipeline.
package account

// Account state is reconstructed from the stream; amounts are in cents.
type Account struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
	Open    bool   `json:"open"`
	Closed  bool   `json:"closed"`
}

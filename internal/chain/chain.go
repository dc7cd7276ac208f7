package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

type ValidationResult struct {
	Valid   bool
	Network string
	Err     string
}

type TransferResult struct {
	Success bool
	TxHash  string
	Err     string
}

// PayoutService is the contract the order engine holds on the blockchain
// side. Transfer reports node-side rejections through TransferResult.Err and
// transport problems through the returned error; it never panics.
type PayoutService interface {
	ValidateAddress(address string) ValidationResult
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
	Transfer(ctx context.Context, toAddress string, amount decimal.Decimal, userID string) (TransferResult, error)
}

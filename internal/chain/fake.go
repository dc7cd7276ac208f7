package chain

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Fake is a configurable in-memory PayoutService for tests.
type Fake struct {
	mu sync.Mutex

	Network    string
	BalanceVal decimal.Decimal
	BalanceErr error

	NextTxHash  string
	TransferErr error
	// NodeErr, when set, makes Transfer report a node-side failure.
	NodeErr string

	transfers []FakeTransfer
}

type FakeTransfer struct {
	To     string
	Amount decimal.Decimal
	UserID string
}

func NewFake(network string) *Fake {
	return &Fake{Network: network, NextTxHash: "faketx"}
}

func (f *Fake) ValidateAddress(address string) ValidationResult {
	return ValidateAddress(address, f.Network)
}

func (f *Fake) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return decimal.Decimal{}, f.BalanceErr
	}
	return f.BalanceVal, nil
}

func (f *Fake) Transfer(ctx context.Context, toAddress string, amount decimal.Decimal, userID string) (TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return TransferResult{}, f.TransferErr
	}
	if f.NodeErr != "" {
		return TransferResult{Err: f.NodeErr}, nil
	}
	f.transfers = append(f.transfers, FakeTransfer{To: toAddress, Amount: amount, UserID: userID})
	return TransferResult{Success: true, TxHash: f.NextTxHash}, nil
}

func (f *Fake) Transfers() []FakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out
}

// SetBalance adjusts the fake's available balance between test phases.
func (f *Fake) SetBalance(v decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BalanceVal = v
}

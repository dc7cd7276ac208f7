package pricing

import (
	"context"
	"errors"

	"nexamarket/internal/store"

	"github.com/shopspring/decimal"
)

var ErrNoRate = errors.New("no exchange rate configured")

// Provider supplies the current INR-per-NEXA exchange rate.
type Provider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Fixed serves a rate frozen in configuration.
type Fixed struct {
	INRPerNexa decimal.Decimal
}

func (f Fixed) Rate(ctx context.Context) (decimal.Decimal, error) {
	if !f.INRPerNexa.IsPositive() {
		return decimal.Decimal{}, ErrNoRate
	}
	return f.INRPerNexa, nil
}

// StoreProvider reads the admin-configured rate row, falling back to a fixed
// rate while no row exists.
type StoreProvider struct {
	Store    *store.Store
	Fallback decimal.Decimal
}

func (p StoreProvider) Rate(ctx context.Context) (decimal.Decimal, error) {
	rate, ok, err := p.Store.GetPrice(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if ok && rate.IsPositive() {
		return rate, nil
	}
	if p.Fallback.IsPositive() {
		return p.Fallback, nil
	}
	return decimal.Decimal{}, ErrNoRate
}

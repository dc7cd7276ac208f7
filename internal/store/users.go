package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// GetUserWallet returns the user's saved payout address, or "" when the user
// has not set one.
func (s *Store) GetUserWallet(ctx context.Context, userID string) (string, error) {
	row := s.Pool.QueryRow(ctx, `SELECT nexa_address FROM user_wallets WHERE user_id=$1`, userID)
	var addr string
	if err := row.Scan(&addr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return addr, nil
}

func (s *Store) SetUserWallet(ctx context.Context, userID, address string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO user_wallets (user_id, nexa_address)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET nexa_address=EXCLUDED.nexa_address, updated_at=now()
	`, userID, address)
	return err
}

// GetPrice returns the configured INR-per-NEXA rate. The second return is
// false when no rate row exists yet.
func (s *Store) GetPrice(ctx context.Context) (decimal.Decimal, bool, error) {
	row := s.Pool.QueryRow(ctx, `SELECT inr_per_nexa FROM price_config WHERE id=1`)
	var rate decimal.Decimal
	if err := row.Scan(&rate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, err
	}
	return rate, true, nil
}

func (s *Store) SetPrice(ctx context.Context, rate decimal.Decimal) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO price_config (id, inr_per_nexa)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET inr_per_nexa=EXCLUDED.inr_per_nexa, updated_at=now()
	`, rate)
	return err
}

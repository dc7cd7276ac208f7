package upi

import (
	"context"
	"time"

	"nexamarket/internal/models"
	"nexamarket/internal/store"
)

const selectAttempts = 3

// rotationStore is the slice of the store the selector needs: the active
// address list and the usage-count claim.
type rotationStore interface {
	ListActiveUpis(ctx context.Context) ([]*models.UpiAddress, error)
	TouchUpi(ctx context.Context, upiID string, expectedUsage int64, now time.Time) (bool, error)
}

// StoreSelector selects against the database. The pick itself is ranked in
// memory; claiming it goes through a usage-count compare-and-swap so two
// concurrent selections cannot both bump the same rotation slot. On CAS loss
// the selection is re-ranked against fresh rows.
type StoreSelector struct {
	Store rotationStore
}

func NewStoreSelector(st *store.Store) *StoreSelector {
	return &StoreSelector{Store: st}
}

func (s *StoreSelector) Select(ctx context.Context) (*models.UpiAddress, error) {
	now := time.Now().UTC()
	for attempt := 0; attempt < selectAttempts; attempt++ {
		addrs, err := s.Store.ListActiveUpis(ctx)
		if err != nil {
			return nil, err
		}
		chosen := Choose(addrs, now)
		if chosen == nil {
			return nil, ErrNoPaymentMethods
		}

		claimed, err := s.Store.TouchUpi(ctx, chosen.UpiID, chosen.UsageCount, now)
		if err != nil {
			return nil, err
		}
		if claimed {
			chosen.UsageCount++
			chosen.LastUsedAt = &now
			return chosen, nil
		}
	}
	// Addresses were eligible every round; the claims just kept losing.
	return nil, ErrSelectorBusy
}

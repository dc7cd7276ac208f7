package upi

import (
	"context"
	"errors"
	"sort"
	"time"

	"nexamarket/internal/models"
)

var (
	ErrNoPaymentMethods = errors.New("no payment methods available")

	// ErrSelectorBusy means eligible addresses exist but every claim lost
	// its compare-and-swap; the caller should retry.
	ErrSelectorBusy = errors.New("payment method selection contended")
)

// Selector picks the UPI collection address to present for a new order and
// advances the rotation state as a side effect of the pick.
type Selector interface {
	Select(ctx context.Context) (*models.UpiAddress, error)
}

// Eligible reports whether the address may collect payments at the given
// time. A nil schedule means always eligible; a window with start > end
// wraps midnight.
func Eligible(u *models.UpiAddress, now time.Time) bool {
	if !u.IsActive {
		return false
	}
	if u.ScheduleStart == nil || u.ScheduleEnd == nil {
		return true
	}
	return withinWindow(*u.ScheduleStart, *u.ScheduleEnd, now)
}

func withinWindow(start, end string, now time.Time) bool {
	startMin, ok := parseClock(start)
	if !ok {
		return true
	}
	endMin, ok := parseClock(end)
	if !ok {
		return true
	}
	nowMin := now.Hour()*60 + now.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin <= endMin
	}
	// Overnight window, e.g. 22:00-06:00.
	return nowMin >= startMin || nowMin <= endMin
}

func parseClock(v string) (int, bool) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// Choose ranks the eligible addresses by priority (lower first), then by
// last-used timestamp with never-used treated as earliest. Equal-priority
// addresses therefore rotate round-robin. Returns nil when nothing is
// eligible.
func Choose(addrs []*models.UpiAddress, now time.Time) *models.UpiAddress {
	var eligible []*models.UpiAddress
	for _, u := range addrs {
		if Eligible(u, now) {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		switch {
		case a.LastUsedAt == nil && b.LastUsedAt == nil:
			return false
		case a.LastUsedAt == nil:
			return true
		case b.LastUsedAt == nil:
			return false
		}
		return a.LastUsedAt.Before(*b.LastUsedAt)
	})
	return eligible[0]
}

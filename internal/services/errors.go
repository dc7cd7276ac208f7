package services

import "errors"

// Request-legitimacy failures. Payout failures are not errors: they are
// recorded on the order and returned as data.
var (
	ErrAmountNotPositive    = errors.New("amount must be a positive number")
	ErrAmountBelowMinimum   = errors.New("amount is below the minimum order size")
	ErrWalletRequired       = errors.New("wallet required")
	ErrInvalidWalletAddress = errors.New("invalid wallet address")
	ErrOrderNotFound        = errors.New("order not found")
	ErrNotOrderOwner        = errors.New("order belongs to another user")
	ErrAdminRequired        = errors.New("admin role required")
	ErrNotLockHolder        = errors.New("caller does not hold the verification lock")
	ErrInvalidDecision      = errors.New("decision must be APPROVE or REJECT")
	ErrInvalidState         = errors.New("invalid order state")
)

// ConflictError reports that the verification lock is already held by
// another admin. Distinct from the other failures so callers can offer a
// retry affordance.
type ConflictError struct {
	Holder string
}

func (e *ConflictError) Error() string {
	return "already locked by " + e.Holder
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperadmin Role = "SUPERADMIN"
)

// Actor is the authenticated principal acting on an order, resolved by the
// upstream auth gateway and attached to every request.
type Actor struct {
	ID      string
	Name    string
	Email   string
	Picture string
	Role    Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperadmin
}

func (a Actor) IsSuperadmin() bool {
	return a.Role == RoleSuperadmin
}

type OrderStatus string

const (
	OrderCreated        OrderStatus = "ORDER_CREATED"
	VerificationPending OrderStatus = "VERIFICATION_PENDING"
	Verifying           OrderStatus = "VERIFYING"
	AdminApproved       OrderStatus = "ADMIN_APPROVED"
	ReleasePayment      OrderStatus = "RELEASE_PAYMENT"
	Rejected            OrderStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed out of s.
// ADMIN_APPROVED is deliberately non-terminal: an order stays there
// indefinitely after a failed payout until an admin reprocesses it.
func (s OrderStatus) Terminal() bool {
	return s == ReleasePayment || s == Rejected
}

type Order struct {
	OrderID   string
	UserID    string
	AmountINR decimal.Decimal

	// NexaAmount and NexaPrice are frozen at creation time and never
	// recomputed; what the user is owed does not move with the rate.
	NexaAmount decimal.Decimal
	NexaPrice  decimal.Decimal

	// WalletAddress is the payout destination, frozen at creation.
	WalletAddress string

	// PaymentQrID is the id of the UPI collection address shown to the user.
	PaymentQrID    string
	TransactionRef *string

	Status    OrderStatus
	CheckedBy string

	TxHash               *string
	LastPaymentAttemptAt *time.Time
	LastAttemptedAddress *string
	PaymentFailureReason *string

	Lifecycle []LifecycleEvent

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpiAddress is a payment-collection VPA configured by administrators.
// LastUsedAt and UsageCount are mutated only by the selection algorithm.
type UpiAddress struct {
	UpiID       string
	Address     string
	DisplayName string
	IsActive    bool

	// ScheduleStart/ScheduleEnd are "HH:MM" times of day. Both nil means
	// the address is eligible around the clock. Start > end wraps midnight.
	ScheduleStart *string
	ScheduleEnd   *string

	Priority   int
	LastUsedAt *time.Time
	UsageCount int64
	DailyLimit *decimal.Decimal
	IsFallback bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nexamarket/internal/chain"
	"nexamarket/internal/models"
	"nexamarket/internal/notify"
	"nexamarket/internal/pricing"
	"nexamarket/internal/store"
	"nexamarket/internal/upi"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStore is the slice of the store the order engine depends on. All
// transition methods are conditional updates: the bool result reports
// whether the row still matched the expected pre-state.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, orderID string, transactionRef *string, ev models.LifecycleEvent) (bool, error)
	LockOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error)
	ApproveOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error)
	RejectOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error)
	ClaimPayoutRetry(ctx context.Context, orderID string) (bool, error)
	RecordPayoutSuccess(ctx context.Context, orderID, txHash, attemptedAddress string, at time.Time, ev models.LifecycleEvent) (bool, error)
	RecordPayoutFailure(ctx context.Context, orderID, reason, attemptedAddress string, at time.Time, ev models.LifecycleEvent) (bool, error)
	GetUserWallet(ctx context.Context, userID string) (string, error)
	SetUserWallet(ctx context.Context, userID, address string) error
}

const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

type OrderService struct {
	Store        OrderStore
	Upi          upi.Selector
	Pricing      pricing.Provider
	Payout       chain.PayoutService
	Notifier     notify.Notifier
	MinAmountINR decimal.Decimal
}

// CreateOrder freezes the exchange rate and the computed token amount into
// the new order row; they are never recalculated afterwards.
func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, amountINR decimal.Decimal) (*models.Order, error) {
	if !amountINR.IsPositive() {
		return nil, ErrAmountNotPositive
	}
	if s.MinAmountINR.IsPositive() && amountINR.LessThan(s.MinAmountINR) {
		return nil, fmt.Errorf("%w: minimum is %s INR", ErrAmountBelowMinimum, s.MinAmountINR.String())
	}

	wallet, err := s.Store.GetUserWallet(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if wallet == "" {
		return nil, ErrWalletRequired
	}

	rate, err := s.Pricing.Rate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rate: %w", err)
	}
	if !rate.IsPositive() {
		return nil, fmt.Errorf("fetch rate: %w", pricing.ErrNoRate)
	}
	nexaAmount := amountINR.Div(rate)

	collection, err := s.Upi.Select(ctx)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderID:       uuid.NewString(),
		UserID:        actor.ID,
		AmountINR:     amountINR,
		NexaAmount:    nexaAmount,
		NexaPrice:     rate,
		WalletAddress: wallet,
		PaymentQrID:   collection.UpiID,
		Status:        models.OrderCreated,
		Lifecycle:     []models.LifecycleEvent{models.NewOrderCreatedEvent(actor.EventActor())},
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

// ConfirmPayment records the user's claim that the UPI transfer was made and
// hands the order to the admin verification queue.
func (s *OrderService) ConfirmPayment(ctx context.Context, actor models.Actor, orderID, transactionRef string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != models.OrderCreated {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, order.Status)
	}

	var ref *string
	if transactionRef != "" {
		ref = &transactionRef
	}
	ev := models.NewPaymentConfirmedEvent(actor.EventActor(), transactionRef)
	ok, err := s.Store.ConfirmPayment(ctx, orderID, ref, ev)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleStateError(ctx, orderID)
	}

	s.Notifier.NotifyAdmins(ctx, "Payment confirmed",
		fmt.Sprintf("Order %s for ₹%s awaits verification", orderID, order.AmountINR.String()),
		notify.SeverityInfo, "/admin/orders/"+orderID)

	return s.GetOrder(ctx, orderID)
}

// Lock claims the verification lock. At most one admin holds it; a re-lock
// by the current holder is a silent no-op, and a superadmin may take the
// lock over with the override flagged in the lifecycle log.
func (s *OrderService) Lock(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CheckedBy == actor.ID {
		return order, nil
	}
	if order.Status != models.VerificationPending && order.Status != models.Verifying {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, order.Status)
	}

	override := false
	previousHolder := ""
	if order.CheckedBy != "" {
		previousHolder = holderName(order)
		if !actor.IsSuperadmin() {
			return nil, &ConflictError{Holder: previousHolder}
		}
		override = true
	}

	ev := models.NewCheckEvent(actor.EventActor(), override, previousHolder)
	ok, err := s.Store.LockOrder(ctx, orderID, actor.ID, ev, override)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race. Re-read to tell a lock conflict from a state change.
		current, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current.CheckedBy != "" && current.CheckedBy != actor.ID {
			return nil, &ConflictError{Holder: holderName(current)}
		}
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, current.Status)
	}
	return s.GetOrder(ctx, orderID)
}

// Decide resolves a verification. Rejection is terminal. Approval records a
// durable ADMIN_APPROVED checkpoint first and only then attempts the payout:
// the decision is a fact independent of whether money moved.
func (s *OrderService) Decide(ctx context.Context, actor models.Actor, orderID, decision, reason string) (*models.Order, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, ErrInvalidDecision
	}
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.VerificationPending && order.Status != models.Verifying {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, order.Status)
	}
	if order.CheckedBy != actor.ID && !actor.IsSuperadmin() {
		if order.CheckedBy == "" {
			return nil, ErrNotLockHolder
		}
		return nil, &ConflictError{Holder: holderName(order)}
	}
	override := actor.IsSuperadmin() && order.CheckedBy != actor.ID

	if decision == DecisionReject {
		return s.reject(ctx, actor, order, reason, override)
	}
	return s.approve(ctx, actor, order, override)
}

func (s *OrderService) reject(ctx context.Context, actor models.Actor, order *models.Order, reason string, override bool) (*models.Order, error) {
	ev := models.NewRejectEvent(actor.EventActor(), reason, override)
	ok, err := s.Store.RejectOrder(ctx, order.OrderID, actor.ID, ev, override)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleStateError(ctx, order.OrderID)
	}

	// Rejection is the one transition that also notifies the end user.
	s.Notifier.NotifyAdmins(ctx, "Order rejected",
		fmt.Sprintf("Order %s rejected by %s", order.OrderID, actor.Name),
		notify.SeverityWarning, "/admin/orders/"+order.OrderID)
	s.Notifier.NotifyUser(ctx, order.UserID, "Order rejected", ev.Note,
		notify.SeverityWarning, "/orders/"+order.OrderID)

	return s.GetOrder(ctx, order.OrderID)
}

func (s *OrderService) approve(ctx context.Context, actor models.Actor, order *models.Order, override bool) (*models.Order, error) {
	ev := models.NewAdminApprovedEvent(actor.EventActor(), override)
	ok, err := s.Store.ApproveOrder(ctx, order.OrderID, actor.ID, ev, override)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleStateError(ctx, order.OrderID)
	}

	outcome := s.attemptPayout(ctx, order)
	updated, err := s.persistPayoutOutcome(ctx, order, outcome, false)
	if err != nil {
		return nil, err
	}

	if outcome.TxHash != "" {
		s.Notifier.NotifyAdmins(ctx, "Payment released",
			fmt.Sprintf("Order %s paid out, tx %s", order.OrderID, outcome.TxHash),
			notify.SeveritySuccess, "/admin/orders/"+order.OrderID)
		s.Notifier.NotifyUser(ctx, order.UserID, "Tokens released",
			fmt.Sprintf("%s NEX sent to your wallet", order.NexaAmount.String()),
			notify.SeveritySuccess, "/orders/"+order.OrderID)
	} else {
		s.Notifier.NotifyAdmins(ctx, "Payout failed",
			fmt.Sprintf("Order %s approved but payout failed: %s", order.OrderID, outcome.FailureReason),
			notify.SeverityError, "/admin/orders/"+order.OrderID)
	}
	return updated, nil
}

// Reprocess retries the payout of an approved order whose earlier payout
// attempt failed. Retries are never automatic; this is the only way back.
func (s *OrderService) Reprocess(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	return s.reprocess(ctx, actor, orderID, false)
}

func (s *OrderService) reprocess(ctx context.Context, actor models.Actor, orderID string, bulk bool) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.AdminApproved || order.PaymentFailureReason == nil {
		return nil, fmt.Errorf("%w: reprocess requires an approved order with a recorded payout failure (status %s)",
			ErrInvalidState, order.Status)
	}

	// Claim the retry before touching the node. Only one of several
	// concurrent retries wins the conditional update; the losers never
	// reach Transfer, so a failed order cannot be paid out twice.
	claimed, err := s.Store.ClaimPayoutRetry(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: payout retry already in progress", ErrInvalidState)
	}

	outcome := s.attemptPayout(ctx, order)
	updated, err := s.persistPayoutOutcomeRetry(ctx, order, outcome, bulk)
	if err != nil {
		return nil, err
	}

	// Retry notifications stay admin-only.
	if outcome.TxHash != "" {
		s.Notifier.NotifyAdmins(ctx, "Payment retry succeeded",
			fmt.Sprintf("Order %s paid out, tx %s", order.OrderID, outcome.TxHash),
			notify.SeveritySuccess, "/admin/orders/"+order.OrderID)
	} else {
		s.Notifier.NotifyAdmins(ctx, "Payment retry failed",
			fmt.Sprintf("Order %s: %s", order.OrderID, outcome.FailureReason),
			notify.SeverityError, "/admin/orders/"+order.OrderID)
	}
	return updated, nil
}

type BulkOrderResult struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BulkReprocessResult struct {
	Results   []BulkOrderResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// BulkReprocess retries a set of failed payouts strictly one after another
// so the attempts do not race each other on the shared payout balance. One
// order's failure never aborts the rest of the batch.
func (s *OrderService) BulkReprocess(ctx context.Context, actor models.Actor, orderIDs []string) (*BulkReprocessResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}

	result := &BulkReprocessResult{}
	for _, id := range orderIDs {
		order, err := s.reprocess(ctx, actor, id, true)
		if err != nil {
			result.Results = append(result.Results, BulkOrderResult{OrderID: id, Error: err.Error()})
			result.Failed++
			continue
		}
		if order.Status == models.ReleasePayment && order.TxHash != nil {
			result.Results = append(result.Results, BulkOrderResult{OrderID: id, Success: true, TxHash: *order.TxHash})
			result.Succeeded++
			continue
		}
		reason := "payout failed"
		if order.PaymentFailureReason != nil {
			reason = *order.PaymentFailureReason
		}
		result.Results = append(result.Results, BulkOrderResult{OrderID: id, Error: reason})
		result.Failed++
	}
	return result, nil
}

// SetWallet saves the user's payout address after validating it against the
// configured network.
func (s *OrderService) SetWallet(ctx context.Context, actor models.Actor, address string) error {
	res := s.Payout.ValidateAddress(address)
	if !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidWalletAddress, res.Err)
	}
	return s.Store.SetUserWallet(ctx, actor.ID, address)
}

// staleStateError re-reads an order whose conditional update matched no row
// and reports what it found.
func (s *OrderService) staleStateError(ctx context.Context, orderID string) error {
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order is %s", ErrInvalidState, current.Status)
}

// holderName resolves the display name of the admin holding the lock from
// the lifecycle log, falling back to the raw id.
func holderName(order *models.Order) string {
	actor := models.LastActorForAction(order.Lifecycle, models.ActionCheck)
	if actor.ID == order.CheckedBy && actor.Name != "" {
		return actor.Name
	}
	return order.CheckedBy
}

package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"nexamarket/internal/models"
)

type payoutOutcome struct {
	TxHash           string
	FailureReason    string
	AttemptedAddress string
	At               time.Time
}

// attemptPayout runs the payout checks in order and short-circuits on the
// first problem. Exactly one failure reason comes out, or a tx hash. Nothing
// in here retries and nothing propagates: an external failure becomes the
// order's failure reason, never the request's error.
func (s *OrderService) attemptPayout(ctx context.Context, order *models.Order) payoutOutcome {
	out := payoutOutcome{
		AttemptedAddress: order.WalletAddress,
		At:               time.Now().UTC(),
	}

	if order.WalletAddress == "" {
		out.FailureReason = "User has no Nexa wallet address."
		return out
	}

	if res := s.Payout.ValidateAddress(order.WalletAddress); !res.Valid {
		out.FailureReason = "Invalid wallet address: " + res.Err
		return out
	}

	balance, err := s.Payout.AvailableBalance(ctx)
	if err != nil {
		out.FailureReason = "Balance check failed: " + err.Error()
		return out
	}
	// Check-then-transfer is not guarded against concurrent payouts draining
	// the balance in between; known limitation, there is no reservation hold.
	if balance.LessThan(order.NexaAmount) {
		out.FailureReason = fmt.Sprintf("Insufficient balance: Required %s NEX, Available %s NEX",
			order.NexaAmount.StringFixed(2), balance.String())
		return out
	}

	res, err := s.Payout.Transfer(ctx, order.WalletAddress, order.NexaAmount, order.UserID)
	if err != nil {
		out.FailureReason = "Transfer exception: " + err.Error()
		return out
	}
	if !res.Success {
		out.FailureReason = "Transfer failed: " + res.Err
		return out
	}

	out.TxHash = res.TxHash
	return out
}

func (s *OrderService) persistPayoutOutcome(ctx context.Context, order *models.Order, out payoutOutcome, bulk bool) (*models.Order, error) {
	var ev models.LifecycleEvent
	if out.TxHash != "" {
		ev = models.NewReleasePaymentEvent(out.AttemptedAddress, out.TxHash, bulk)
	} else {
		ev = models.NewPaymentAttemptFailedEvent(out.AttemptedAddress, out.FailureReason)
	}
	return s.recordOutcome(ctx, order, out, ev)
}

func (s *OrderService) persistPayoutOutcomeRetry(ctx context.Context, order *models.Order, out payoutOutcome, bulk bool) (*models.Order, error) {
	var ev models.LifecycleEvent
	if out.TxHash != "" {
		ev = models.NewPaymentRetrySuccessEvent(out.AttemptedAddress, out.TxHash, bulk)
	} else {
		ev = models.NewPaymentRetryFailedEvent(out.AttemptedAddress, out.FailureReason, bulk)
	}
	return s.recordOutcome(ctx, order, out, ev)
}

func (s *OrderService) recordOutcome(ctx context.Context, order *models.Order, out payoutOutcome, ev models.LifecycleEvent) (*models.Order, error) {
	var ok bool
	var err error
	if out.TxHash != "" {
		ok, err = s.Store.RecordPayoutSuccess(ctx, order.OrderID, out.TxHash, out.AttemptedAddress, out.At, ev)
	} else {
		ok, err = s.Store.RecordPayoutFailure(ctx, order.OrderID, out.FailureReason, out.AttemptedAddress, out.At, ev)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		// The order left ADMIN_APPROVED under us; the result has nowhere
		// to go and needs an operator to look at it.
		log.Printf("payout outcome dropped: order %s is no longer %s (tx=%q reason=%q)",
			order.OrderID, models.AdminApproved, out.TxHash, out.FailureReason)
	}
	return s.GetOrder(ctx, order.OrderID)
}

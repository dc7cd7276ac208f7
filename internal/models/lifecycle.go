package models

import "time"

type LifecycleAction string

const (
	ActionOrderCreated        LifecycleAction = "ORDER_CREATED"
	ActionPaymentConfirmed    LifecycleAction = "PAYMENT_CONFIRMED"
	ActionCheck               LifecycleAction = "CHECK"
	ActionAdminApproved       LifecycleAction = "ADMIN_APPROVED"
	ActionReject              LifecycleAction = "REJECT"
	ActionReleasePayment      LifecycleAction = "RELEASE_PAYMENT"
	ActionPaymentAttemptFail  LifecycleAction = "PAYMENT_ATTEMPT_FAILED"
	ActionPaymentRetrySuccess LifecycleAction = "PAYMENT_RETRY_SUCCESS"
	ActionPaymentRetryFailed  LifecycleAction = "PAYMENT_RETRY_FAILED"
)

// EventActor is the snapshot of who caused a lifecycle event. Automated
// transitions use SystemActor.
type EventActor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

var SystemActor = EventActor{ID: "SYSTEM", Name: "SYSTEM"}

func (a Actor) EventActor() EventActor {
	return EventActor{ID: a.ID, Name: a.Name, Email: a.Email, Picture: a.Picture}
}

// LifecycleEvent is one entry of an order's append-only lifecycle log.
// Events are never mutated once appended. The optional fields are valid only
// for the actions whose constructors set them; build events through the
// New*Event constructors rather than filling the struct by hand.
type LifecycleEvent struct {
	Status    OrderStatus     `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     EventActor      `json:"actor"`
	Action    LifecycleAction `json:"action"`
	Note      string          `json:"note,omitempty"`

	RecipientAddress     string `json:"recipientAddress,omitempty"`
	TxHash               string `json:"txHash,omitempty"`
	IsSuperadminOverride bool   `json:"isSuperadminOverride,omitempty"`
	BulkRetry            bool   `json:"bulkRetry,omitempty"`
}

func newEvent(status OrderStatus, actor EventActor, action LifecycleAction, note string) LifecycleEvent {
	return LifecycleEvent{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Note:      note,
	}
}

func NewOrderCreatedEvent(actor EventActor) LifecycleEvent {
	return newEvent(OrderCreated, actor, ActionOrderCreated, "Order created")
}

func NewPaymentConfirmedEvent(actor EventActor, transactionRef string) LifecycleEvent {
	note := "Payment confirmed by user"
	if transactionRef != "" {
		note = "Payment confirmed by user, ref " + transactionRef
	}
	return newEvent(VerificationPending, actor, ActionPaymentConfirmed, note)
}

func NewCheckEvent(actor EventActor, override bool, previousHolder string) LifecycleEvent {
	note := "Verification started"
	if override {
		note = "Superadmin took over verification from " + previousHolder
	}
	ev := newEvent(Verifying, actor, ActionCheck, note)
	ev.IsSuperadminOverride = override
	return ev
}

func NewAdminApprovedEvent(actor EventActor, override bool) LifecycleEvent {
	ev := newEvent(AdminApproved, actor, ActionAdminApproved, "Payment verified and approved")
	ev.IsSuperadminOverride = override
	return ev
}

func NewRejectEvent(actor EventActor, note string, override bool) LifecycleEvent {
	if note == "" {
		note = "Payment rejected"
	}
	ev := newEvent(Rejected, actor, ActionReject, note)
	ev.IsSuperadminOverride = override
	return ev
}

func NewReleasePaymentEvent(recipient, txHash string, bulkRetry bool) LifecycleEvent {
	ev := newEvent(ReleasePayment, SystemActor, ActionReleasePayment, "Tokens released")
	ev.RecipientAddress = recipient
	ev.TxHash = txHash
	ev.BulkRetry = bulkRetry
	return ev
}

func NewPaymentAttemptFailedEvent(recipient, reason string) LifecycleEvent {
	ev := newEvent(AdminApproved, SystemActor, ActionPaymentAttemptFail, reason)
	ev.RecipientAddress = recipient
	return ev
}

func NewPaymentRetrySuccessEvent(recipient, txHash string, bulkRetry bool) LifecycleEvent {
	ev := newEvent(ReleasePayment, SystemActor, ActionPaymentRetrySuccess, "Payment retry succeeded")
	ev.RecipientAddress = recipient
	ev.TxHash = txHash
	ev.BulkRetry = bulkRetry
	return ev
}

func NewPaymentRetryFailedEvent(recipient, reason string, bulkRetry bool) LifecycleEvent {
	ev := newEvent(AdminApproved, SystemActor, ActionPaymentRetryFailed, reason)
	ev.RecipientAddress = recipient
	ev.BulkRetry = bulkRetry
	return ev
}

func NewOrderExpiredEvent(note string) LifecycleEvent {
	return newEvent(Rejected, SystemActor, ActionReject, note)
}

// HasAction reports whether any event in the log carries the given action.
func HasAction(log []LifecycleEvent, action LifecycleAction) bool {
	for _, ev := range log {
		if ev.Action == action {
			return true
		}
	}
	return false
}

// LastActorForAction returns the actor of the most recent event with the
// given action, or the zero EventActor when none exists.
func LastActorForAction(log []LifecycleEvent, action LifecycleAction) EventActor {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Action == action {
			return log[i].Actor
		}
	}
	return EventActor{}
}

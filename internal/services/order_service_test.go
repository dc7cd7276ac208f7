package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexamarket/internal/chain"
	"nexamarket/internal/models"
	"nexamarket/internal/notify"
	"nexamarket/internal/store"
	"nexamarket/internal/upi"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore mirrors the store's conditional-update semantics in memory so
// engine behavior, including lock races, can be exercised without Postgres.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	wallets map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[string]*models.Order),
		wallets: make(map[string]string),
	}
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Lifecycle = append([]models.LifecycleEvent(nil), o.Lifecycle...)
	return &c
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	c := cloneOrder(order)
	c.CreatedAt = now
	c.UpdatedAt = now
	f.orders[order.OrderID] = c
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeStore) ConfirmPayment(ctx context.Context, orderID string, transactionRef *string, ev models.LifecycleEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != models.OrderCreated {
		return false, nil
	}
	o.Status = models.VerificationPending
	o.TransactionRef = transactionRef
	o.Lifecycle = append(o.Lifecycle, ev)
	return true, nil
}

func (f *fakeStore) LockOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	if o.Status != models.VerificationPending && o.Status != models.Verifying {
		return false, nil
	}
	if !override && o.CheckedBy != "" {
		return false, nil
	}
	o.Status = models.Verifying
	o.CheckedBy = adminID
	o.Lifecycle = append(o.Lifecycle, ev)
	return true, nil
}

func (f *fakeStore) ApproveOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	if override {
		if o.Status != models.VerificationPending && o.Status != models.Verifying {
			return false, nil
		}
		if o.CheckedBy == "" {
			o.CheckedBy = adminID
		}
	} else {
		if o.Status != models.Verifying || o.CheckedBy != adminID {
			return false, nil
		}
	}
	o.Status = models.AdminApproved
	o.Lifecycle = append(o.Lifecycle, ev)
	return true, nil
}

func (f *fakeStore) RejectOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	if override {
		if o.Status != models.VerificationPending && o.Status != models.Verifying {
			return false, nil
		}
	} else {
		if o.Status != models.Verifying || o.CheckedBy != adminID {
			return false, nil
		}
	}
	o.Status = models.Rejected
	o.Lifecycle = append(o.Lifecycle, ev)
	return true, nil
}

func (f *fakeStore) ClaimPayoutRetry(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != models.AdminApproved || o.PaymentFailureReason == nil {
		return false, nil
	}
	o.PaymentFailureReason = nil
	return true, nil
}

func (f *fakeStore) RecordPayoutSuccess(ctx context.Context, orderID, txHash, attemptedAddress string, at time.Time, ev models.LifecycleEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != models.AdminApproved {
		return false, nil
	}
	o.Status = models.ReleasePayment
	o.TxHash = &txHash
	o.PaymentFailureReason = nil
	o.LastPaymentAttemptAt = &at
	o.LastAttemptedAddress = &attemptedAddress
	o.Lifecycle = append(o.Lifecycle, ev)
	return true, nil
}

func (f *fakeStore) RecordPayoutFailure(ctx context.Context, orderID, reason, attemptedAddress string, at time.Time, ev models.LifecycleEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != models.AdminApproved {
		return false, nil
	}
	o.PaymentFailureReason = &reason
	o.LastPaymentAttemptAt = &at
	o.LastAttemptedAddress = &attemptedAddress
	o.Lifecycle = append(o.Lifecycle, ev)
	return true, nil
}

func (f *fakeStore) GetUserWallet(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[userID], nil
}

func (f *fakeStore) SetUserWallet(ctx context.Context, userID, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets[userID] = address
	return nil
}

type fakeSelector struct {
	mu    sync.Mutex
	addrs []*models.UpiAddress
}

func (s *fakeSelector) Select(ctx context.Context) (*models.UpiAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	chosen := upi.Choose(s.addrs, now)
	if chosen == nil {
		return nil, upi.ErrNoPaymentMethods
	}
	chosen.UsageCount++
	chosen.LastUsedAt = &now
	return chosen, nil
}

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) Rate(ctx context.Context) (decimal.Decimal, error) { return f.rate, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	user   []string
	admins []string
}

func (n *recordingNotifier) NotifyUser(ctx context.Context, userID, title, body string, severity notify.Severity, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.user = append(n.user, title)
}

func (n *recordingNotifier) NotifyAdmins(ctx context.Context, title, body string, severity notify.Severity, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, title)
}

var (
	user       = models.Actor{ID: "user-1", Name: "Ravi", Role: models.RoleUser}
	otherUser  = models.Actor{ID: "user-2", Name: "Priya", Role: models.RoleUser}
	adminA     = models.Actor{ID: "admin-a", Name: "Admin A", Role: models.RoleAdmin}
	adminB     = models.Actor{ID: "admin-b", Name: "Admin B", Role: models.RoleAdmin}
	superadmin = models.Actor{ID: "super-1", Name: "Super", Role: models.RoleSuperadmin}
)

func testWallet(t *testing.T) string {
	t.Helper()
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	converted, err := bech32.ConvertBits(payload, 8, 5, true)
	require.NoError(t, err)
	addr, err := bech32.Encode("nexa", converted)
	require.NoError(t, err)
	return addr
}

type fixture struct {
	svc      *OrderService
	store    *fakeStore
	payout   *chain.Fake
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStore()
	st.wallets[user.ID] = testWallet(t)

	payout := chain.NewFake(chain.NetworkMainnet)
	payout.BalanceVal = decimal.NewFromInt(100_000_000)
	payout.NextTxHash = "txhash-1"

	notifier := &recordingNotifier{}
	selector := &fakeSelector{addrs: []*models.UpiAddress{
		{UpiID: "upi-1", Address: "shop@upi", IsActive: true},
		{UpiID: "upi-2", Address: "shop2@upi", IsActive: true},
	}}

	svc := &OrderService{
		Store:    st,
		Upi:      selector,
		Pricing:  fixedRate{rate: decimal.RequireFromString("0.00005")},
		Payout:   payout,
		Notifier: notifier,
	}
	return &fixture{svc: svc, store: st, payout: payout, notifier: notifier}
}

func (f *fixture) createConfirmed(t *testing.T) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, user, decimal.NewFromInt(500))
	require.NoError(t, err)
	order, err = f.svc.ConfirmPayment(ctx, user, order.OrderID, "UTR123")
	require.NoError(t, err)
	return order
}

func TestCreateOrderFreezesPriceAndAmount(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), user, decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.Equal(t, models.OrderCreated, order.Status)
	assert.True(t, order.NexaAmount.Equal(decimal.NewFromInt(10_000_000)),
		"got %s", order.NexaAmount)
	assert.True(t, order.NexaPrice.Equal(decimal.RequireFromString("0.00005")))
	assert.NotEmpty(t, order.PaymentQrID)
	require.Len(t, order.Lifecycle, 1)
	assert.Equal(t, models.ActionOrderCreated, order.Lifecycle[0].Action)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, user, decimal.Zero)
	assert.ErrorIs(t, err, ErrAmountNotPositive)

	_, err = f.svc.CreateOrder(ctx, user, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrAmountNotPositive)

	_, err = f.svc.CreateOrder(ctx, otherUser, decimal.NewFromInt(500))
	assert.ErrorIs(t, err, ErrWalletRequired)
}

func TestCreateOrderNoPaymentMethods(t *testing.T) {
	f := newFixture(t)
	f.svc.Upi = &fakeSelector{}

	_, err := f.svc.CreateOrder(context.Background(), user, decimal.NewFromInt(500))
	assert.ErrorIs(t, err, upi.ErrNoPaymentMethods)
}

func TestCreateOrderRotatesUpi(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateOrder(ctx, user, decimal.NewFromInt(500))
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(ctx, user, decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.NotEqual(t, first.PaymentQrID, second.PaymentQrID)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, user, decimal.NewFromInt(500))
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, otherUser, order.OrderID, "")
	assert.ErrorIs(t, err, ErrNotOrderOwner)

	confirmed, err := f.svc.ConfirmPayment(ctx, user, order.OrderID, "UTR123")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, confirmed.Status)
	require.NotNil(t, confirmed.TransactionRef)
	assert.Equal(t, "UTR123", *confirmed.TransactionRef)
	assert.Equal(t, models.ActionPaymentConfirmed, confirmed.Lifecycle[len(confirmed.Lifecycle)-1].Action)
	assert.Contains(t, f.notifier.admins, "Payment confirmed")

	// Confirming twice is an invalid-state operation.
	_, err = f.svc.ConfirmPayment(ctx, user, order.OrderID, "UTR123")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLockIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	locked, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.Verifying, locked.Status)
	assert.Equal(t, adminA.ID, locked.CheckedBy)

	_, err = f.svc.Lock(ctx, adminB, order.OrderID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, adminA.Name, conflict.Holder)
}

func TestLockConcurrentExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	order := f.createConfirmed(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, admin := range []models.Actor{adminA, adminB} {
		wg.Add(1)
		go func(i int, admin models.Actor) {
			defer wg.Done()
			_, errs[i] = f.svc.Lock(context.Background(), admin, order.OrderID)
		}(i, admin)
	}
	wg.Wait()

	var conflicts, wins int
	for _, err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			wins++
		case assert.ErrorAs(t, err, &conflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestRelockByHolderIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	first, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)
	second, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	assert.Equal(t, len(first.Lifecycle), len(second.Lifecycle),
		"re-lock by the holder must not append another CHECK event")
}

func TestSuperadminLockOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	locked, err := f.svc.Lock(ctx, superadmin, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, superadmin.ID, locked.CheckedBy)

	last := locked.Lifecycle[len(locked.Lifecycle)-1]
	assert.Equal(t, models.ActionCheck, last.Action)
	assert.True(t, last.IsSuperadminOverride)
	assert.Contains(t, last.Note, adminA.Name)
}

func TestDecideRequiresLockHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	_, err := f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	assert.ErrorIs(t, err, ErrNotLockHolder)

	_, err = f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, adminB, order.OrderID, DecisionApprove, "")
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = f.svc.Decide(ctx, adminA, order.OrderID, "MAYBE", "")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = f.svc.Decide(ctx, user, order.OrderID, DecisionApprove, "")
	assert.ErrorIs(t, err, ErrAdminRequired)
}

func TestApproveReleasesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	decided, err := f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	require.NoError(t, err)

	assert.Equal(t, models.ReleasePayment, decided.Status)
	require.NotNil(t, decided.TxHash)
	assert.Equal(t, "txhash-1", *decided.TxHash)
	assert.Nil(t, decided.PaymentFailureReason)

	assert.True(t, models.HasAction(decided.Lifecycle, models.ActionAdminApproved))
	last := decided.Lifecycle[len(decided.Lifecycle)-1]
	assert.Equal(t, models.ActionReleasePayment, last.Action)
	assert.Equal(t, "txhash-1", last.TxHash)
	assert.Equal(t, models.SystemActor, last.Actor)

	require.Len(t, f.payout.Transfers(), 1)
	assert.Equal(t, user.ID, f.payout.Transfers()[0].UserID)
	assert.Contains(t, f.notifier.user, "Tokens released")
}

func TestApproveInsufficientBalanceThenReprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	f.payout.SetBalance(decimal.NewFromInt(100))
	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	decided, err := f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	require.NoError(t, err, "the decision succeeds even when the payout does not")

	assert.Equal(t, models.AdminApproved, decided.Status)
	assert.Nil(t, decided.TxHash)
	require.NotNil(t, decided.PaymentFailureReason)
	assert.Equal(t, "Insufficient balance: Required 10000000.00 NEX, Available 100 NEX", *decided.PaymentFailureReason)

	last := decided.Lifecycle[len(decided.Lifecycle)-1]
	assert.Equal(t, models.ActionPaymentAttemptFail, last.Action)
	assert.Equal(t, models.SystemActor, last.Actor)

	// Top up and retry.
	f.payout.SetBalance(decimal.NewFromInt(100_000_000))
	retried, err := f.svc.Reprocess(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	assert.Equal(t, models.ReleasePayment, retried.Status)
	require.NotNil(t, retried.TxHash)
	assert.Nil(t, retried.PaymentFailureReason)
	assert.Equal(t, models.ActionPaymentRetrySuccess, retried.Lifecycle[len(retried.Lifecycle)-1].Action)
	assert.Contains(t, f.notifier.admins, "Payment retry succeeded")
	assert.NotContains(t, f.notifier.user, "Payment retry succeeded")
}

func TestApproveTransferException(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	f.payout.TransferErr = context.DeadlineExceeded
	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	decided, err := f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.AdminApproved, decided.Status)
	require.NotNil(t, decided.PaymentFailureReason)
	assert.Contains(t, *decided.PaymentFailureReason, "Transfer exception:")
}

func TestApproveTransferFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	f.payout.NodeErr = "tx rejected by mempool"
	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	decided, err := f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	require.NoError(t, err)
	require.NotNil(t, decided.PaymentFailureReason)
	assert.Equal(t, "Transfer failed: tx rejected by mempool", *decided.PaymentFailureReason)
}

func TestRejectNotifiesUserAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	rejected, err := f.svc.Decide(ctx, adminA, order.OrderID, DecisionReject, "screenshot does not match")
	require.NoError(t, err)
	assert.Equal(t, models.Rejected, rejected.Status)

	last := rejected.Lifecycle[len(rejected.Lifecycle)-1]
	assert.Equal(t, models.ActionReject, last.Action)
	assert.Equal(t, "screenshot does not match", last.Note)
	assert.Contains(t, f.notifier.user, "Order rejected")
	assert.Contains(t, f.notifier.admins, "Order rejected")

	// Rejecting a rejected order is an invalid-state operation, not a
	// second REJECT entry.
	events := len(rejected.Lifecycle)
	_, err = f.svc.Decide(ctx, adminA, order.OrderID, DecisionReject, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
	current, err := f.svc.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Len(t, current.Lifecycle, events)
}

func TestSuperadminDecideOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)

	decided, err := f.svc.Decide(ctx, superadmin, order.OrderID, DecisionApprove, "")
	require.NoError(t, err)

	var approval *models.LifecycleEvent
	for i := range decided.Lifecycle {
		if decided.Lifecycle[i].Action == models.ActionAdminApproved {
			approval = &decided.Lifecycle[i]
		}
	}
	require.NotNil(t, approval)
	assert.True(t, approval.IsSuperadminOverride)
}

// gatedPayout holds Transfer open until released so a second caller can be
// driven through the retry path while the first is mid-transfer.
type gatedPayout struct {
	*chain.Fake
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPayout) Transfer(ctx context.Context, to string, amount decimal.Decimal, userID string) (chain.TransferResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Fake.Transfer(ctx, to, amount, userID)
}

func TestReprocessConcurrentPaysOutOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	f.payout.SetBalance(decimal.NewFromInt(1))
	_, err := f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	require.NoError(t, err)
	f.payout.SetBalance(decimal.NewFromInt(100_000_000))

	gated := &gatedPayout{
		Fake:    f.payout,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f.svc.Payout = gated

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Reprocess(ctx, adminA, order.OrderID)
		done <- err
	}()
	<-gated.entered

	// While the first retry is mid-transfer, a second retry must be turned
	// away before it reaches the node.
	_, err = f.svc.Reprocess(ctx, adminB, order.OrderID)
	assert.ErrorIs(t, err, ErrInvalidState)

	close(gated.release)
	require.NoError(t, <-done)

	assert.Len(t, f.payout.Transfers(), 1)
	final, err := f.svc.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleasePayment, final.Status)
	require.NotNil(t, final.TxHash)
}

func TestReprocessRequiresFailedApprovedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createConfirmed(t)

	_, err := f.svc.Reprocess(ctx, adminA, order.OrderID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// A successfully released order is not retriable either.
	_, err = f.svc.Lock(ctx, adminA, order.OrderID)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, adminA, order.OrderID, DecisionApprove, "")
	require.NoError(t, err)
	_, err = f.svc.Reprocess(ctx, adminA, order.OrderID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBulkReprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First order: approved with a failed payout, will succeed on retry.
	first := f.createConfirmed(t)
	f.payout.SetBalance(decimal.NewFromInt(1))
	_, err := f.svc.Lock(ctx, adminA, first.OrderID)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, adminA, first.OrderID, DecisionApprove, "")
	require.NoError(t, err)
	f.payout.SetBalance(decimal.NewFromInt(100_000_000))

	// Second order: still unconfirmed, ineligible for retry.
	second, err := f.svc.CreateOrder(ctx, user, decimal.NewFromInt(500))
	require.NoError(t, err)

	result, err := f.svc.BulkReprocess(ctx, adminA, []string{first.OrderID, second.OrderID, "missing"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.NotEmpty(t, result.Results[0].TxHash)
	assert.False(t, result.Results[1].Success)
	assert.False(t, result.Results[2].Success)

	retried, err := f.svc.GetOrder(ctx, first.OrderID)
	require.NoError(t, err)
	last := retried.Lifecycle[len(retried.Lifecycle)-1]
	assert.Equal(t, models.ActionPaymentRetrySuccess, last.Action)
	assert.True(t, last.BulkRetry)
}

func TestCheckedByMatchesCheckEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unlocked := f.createConfirmed(t)
	assert.Empty(t, unlocked.CheckedBy)
	assert.False(t, models.HasAction(unlocked.Lifecycle, models.ActionCheck))

	locked, err := f.svc.Lock(ctx, adminA, unlocked.OrderID)
	require.NoError(t, err)
	assert.NotEmpty(t, locked.CheckedBy)
	assert.True(t, models.HasAction(locked.Lifecycle, models.ActionCheck))
}

func TestSetWalletValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetWallet(ctx, otherUser, "garbage")
	assert.ErrorIs(t, err, ErrInvalidWalletAddress)

	err = f.svc.SetWallet(ctx, otherUser, testWallet(t))
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, otherUser, decimal.NewFromInt(500))
	require.NoError(t, err)
}

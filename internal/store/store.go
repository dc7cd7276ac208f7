package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"nexamarket/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const orderColumns = `order_id, user_id, amount_inr, nexa_amount, nexa_price,
	wallet_address, payment_qr_id, transaction_ref, status, checked_by,
	tx_hash, last_payment_attempt_at, last_attempted_address,
	payment_failure_reason, lifecycle, created_at, updated_at`

// eventJSON marshals a single lifecycle event as a one-element JSON array so
// it can be appended to the lifecycle column with the || operator.
func eventJSON(ev models.LifecycleEvent) ([]byte, error) {
	return json.Marshal([]models.LifecycleEvent{ev})
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	lifecycle, err := json.Marshal(order.Lifecycle)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, user_id, amount_inr, nexa_amount, nexa_price,
			wallet_address, payment_qr_id, transaction_ref, status,
			checked_by, lifecycle
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.OrderID,
		order.UserID,
		order.AmountINR,
		order.NexaAmount,
		order.NexaPrice,
		order.WalletAddress,
		order.PaymentQrID,
		order.TransactionRef,
		order.Status,
		order.CheckedBy,
		lifecycle,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return order, err
}

func (s *Store) ListOrdersByStatus(ctx context.Context, statuses ...models.OrderStatus) ([]*models.Order, error) {
	list := make([]string, 0, len(statuses))
	for _, st := range statuses {
		list = append(list, string(st))
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1)
		ORDER BY created_at DESC
	`, list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) ListOrdersForUser(ctx context.Context, userID string) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ConfirmPayment moves a freshly created order to VERIFICATION_PENDING.
// The status predicate makes the update a no-op when the order has already
// moved on; callers decide what a zero row count means.
func (s *Store) ConfirmPayment(ctx context.Context, orderID string, transactionRef *string, ev models.LifecycleEvent) (bool, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return false, err
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, transaction_ref=$3, lifecycle=lifecycle || $4::jsonb, updated_at=now()
		WHERE order_id=$1 AND status=$5
	`, orderID, models.VerificationPending, transactionRef, evJSON, models.OrderCreated)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// LockOrder claims the verification lock for adminID. Without override the
// update only succeeds while checked_by is still empty, which is what makes
// two concurrent lock attempts resolve to exactly one winner.
func (s *Store) LockOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return false, err
	}
	query := `
		UPDATE orders
		SET status=$2, checked_by=$3, lifecycle=lifecycle || $4::jsonb, updated_at=now()
		WHERE order_id=$1 AND status IN ($5,$6) AND checked_by=''
	`
	if override {
		query = `
		UPDATE orders
		SET status=$2, checked_by=$3, lifecycle=lifecycle || $4::jsonb, updated_at=now()
		WHERE order_id=$1 AND status IN ($5,$6)
	`
	}
	res, err := s.Pool.Exec(ctx, query,
		orderID, models.Verifying, adminID, evJSON,
		models.VerificationPending, models.Verifying)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ApproveOrder records the durable approval checkpoint. Without override the
// caller must still hold the lock at write time.
func (s *Store) ApproveOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return false, err
	}
	if override {
		res, err := s.Pool.Exec(ctx, `
			UPDATE orders
			SET status=$2,
				checked_by = CASE WHEN checked_by='' THEN $3 ELSE checked_by END,
				lifecycle=lifecycle || $4::jsonb, updated_at=now()
			WHERE order_id=$1 AND status IN ($5,$6)
		`, orderID, models.AdminApproved, adminID, evJSON,
			models.VerificationPending, models.Verifying)
		if err != nil {
			return false, err
		}
		return res.RowsAffected() > 0, nil
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, lifecycle=lifecycle || $3::jsonb, updated_at=now()
		WHERE order_id=$1 AND status=$4 AND checked_by=$5
	`, orderID, models.AdminApproved, evJSON, models.Verifying, adminID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) RejectOrder(ctx context.Context, orderID, adminID string, ev models.LifecycleEvent, override bool) (bool, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return false, err
	}
	if override {
		res, err := s.Pool.Exec(ctx, `
			UPDATE orders
			SET status=$2, lifecycle=lifecycle || $3::jsonb, updated_at=now()
			WHERE order_id=$1 AND status IN ($4,$5)
		`, orderID, models.Rejected, evJSON,
			models.VerificationPending, models.Verifying)
		if err != nil {
			return false, err
		}
		return res.RowsAffected() > 0, nil
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, lifecycle=lifecycle || $3::jsonb, updated_at=now()
		WHERE order_id=$1 AND status=$4 AND checked_by=$5
	`, orderID, models.Rejected, evJSON, models.Verifying, adminID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ClaimPayoutRetry marks a failed payout as being retried by clearing the
// failure reason under a conditional update. Only one of several concurrent
// retries can match the non-null reason, so only one proceeds to the node;
// a failed retry writes the reason back and re-arms the claim.
func (s *Store) ClaimPayoutRetry(ctx context.Context, orderID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET payment_failure_reason=NULL, updated_at=now()
		WHERE order_id=$1 AND status=$2 AND payment_failure_reason IS NOT NULL
	`, orderID, models.AdminApproved)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// RecordPayoutSuccess persists the terminal RELEASE_PAYMENT state together
// with the tx hash, cleared failure reason and the appended event in one
// update.
func (s *Store) RecordPayoutSuccess(ctx context.Context, orderID, txHash, attemptedAddress string, at time.Time, ev models.LifecycleEvent) (bool, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return false, err
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, tx_hash=$3, payment_failure_reason=NULL,
			last_payment_attempt_at=$4, last_attempted_address=$5,
			lifecycle=lifecycle || $6::jsonb, updated_at=now()
		WHERE order_id=$1 AND status=$7
	`, orderID, models.ReleasePayment, txHash, at, attemptedAddress, evJSON, models.AdminApproved)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) RecordPayoutFailure(ctx context.Context, orderID, reason, attemptedAddress string, at time.Time, ev models.LifecycleEvent) (bool, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return false, err
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET payment_failure_reason=$2, last_payment_attempt_at=$3,
			last_attempted_address=$4, lifecycle=lifecycle || $5::jsonb,
			updated_at=now()
		WHERE order_id=$1 AND status=$6
	`, orderID, reason, at, attemptedAddress, evJSON, models.AdminApproved)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ExpireStaleOrders rejects orders that were created before the cutoff and
// never confirmed. Known policy: a degenerate ORDER_CREATED -> REJECTED
// transition bypassing the verification path.
func (s *Store) ExpireStaleOrders(ctx context.Context, cutoff time.Time, ev models.LifecycleEvent) ([]string, error) {
	evJSON, err := eventJSON(ev)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `
		UPDATE orders
		SET status=$1, lifecycle=lifecycle || $2::jsonb, updated_at=now()
		WHERE status=$3 AND created_at < $4
		RETURNING order_id
	`, models.Rejected, evJSON, models.OrderCreated, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var transactionRef sql.NullString
	var txHash sql.NullString
	var lastAttemptAt sql.NullTime
	var lastAttemptedAddr sql.NullString
	var failureReason sql.NullString
	var lifecycle []byte

	err := row.Scan(
		&order.OrderID,
		&order.UserID,
		&order.AmountINR,
		&order.NexaAmount,
		&order.NexaPrice,
		&order.WalletAddress,
		&order.PaymentQrID,
		&transactionRef,
		&order.Status,
		&order.CheckedBy,
		&txHash,
		&lastAttemptAt,
		&lastAttemptedAddr,
		&failureReason,
		&lifecycle,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if transactionRef.Valid {
		order.TransactionRef = &transactionRef.String
	}
	if txHash.Valid {
		order.TxHash = &txHash.String
	}
	if lastAttemptAt.Valid {
		order.LastPaymentAttemptAt = &lastAttemptAt.Time
	}
	if lastAttemptedAddr.Valid {
		order.LastAttemptedAddress = &lastAttemptedAddr.String
	}
	if failureReason.Valid {
		order.PaymentFailureReason = &failureReason.String
	}
	if len(lifecycle) > 0 {
		if err := json.Unmarshal(lifecycle, &order.Lifecycle); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

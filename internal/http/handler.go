package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nexamarket/internal/models"
	"nexamarket/internal/notify"
	"nexamarket/internal/services"
	"nexamarket/internal/store"
	"nexamarket/internal/upi"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Orders *services.OrderService
	Store  *store.Store
	Hub    *notify.Hub
}

func NewHandler(orders *services.OrderService, st *store.Store, hub *notify.Hub) *Handler {
	return &Handler{Orders: orders, Store: st, Hub: hub}
}

type createOrderRequest struct {
	AmountINR decimal.Decimal `json:"amountInr"`
}

type confirmPaymentRequest struct {
	TransactionRef string `json:"transactionRef"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type bulkReprocessRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type setWalletRequest struct {
	Address string `json:"address"`
}

type orderResponse struct {
	OrderID              string                  `json:"orderId"`
	UserID               string                  `json:"userId"`
	AmountINR            decimal.Decimal         `json:"amountInr"`
	NexaAmount           decimal.Decimal         `json:"nexaAmount"`
	NexaPrice            decimal.Decimal         `json:"nexaPrice"`
	WalletAddress        string                  `json:"walletAddress"`
	PaymentQrID          string                  `json:"paymentQrId"`
	PaymentAddress       string                  `json:"paymentAddress,omitempty"`
	PaymentDisplayName   string                  `json:"paymentDisplayName,omitempty"`
	TransactionRef       string                  `json:"transactionRef,omitempty"`
	Status               string                  `json:"status"`
	CheckedBy            string                  `json:"checkedBy,omitempty"`
	TxHash               string                  `json:"txHash,omitempty"`
	PaymentFailureReason string                  `json:"paymentFailureReason,omitempty"`
	LastPaymentAttemptAt string                  `json:"lastPaymentAttemptAt,omitempty"`
	Lifecycle            []models.LifecycleEvent `json:"lifecycle"`
	CreatedAt            string                  `json:"createdAt"`
}

func (h *Handler) orderJSON(r *http.Request, order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		AmountINR:     order.AmountINR,
		NexaAmount:    order.NexaAmount,
		NexaPrice:     order.NexaPrice,
		WalletAddress: order.WalletAddress,
		PaymentQrID:   order.PaymentQrID,
		Status:        string(order.Status),
		CheckedBy:     order.CheckedBy,
		Lifecycle:     order.Lifecycle,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
	}
	if order.TransactionRef != nil {
		resp.TransactionRef = *order.TransactionRef
	}
	if order.TxHash != nil {
		resp.TxHash = *order.TxHash
	}
	if order.PaymentFailureReason != nil {
		resp.PaymentFailureReason = *order.PaymentFailureReason
	}
	if order.LastPaymentAttemptAt != nil {
		resp.LastPaymentAttemptAt = order.LastPaymentAttemptAt.Format(time.RFC3339)
	}
	if order.PaymentQrID != "" {
		if u, err := h.Store.GetUpi(r.Context(), order.PaymentQrID); err == nil {
			resp.PaymentAddress = u.Address
			resp.PaymentDisplayName = u.DisplayName
		}
	}
	return resp
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.CreateOrder(r.Context(), actorFrom(r), req.AmountINR)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(r, order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	actor := actorFrom(r)
	if order.UserID != actor.ID && !actor.IsAdmin() {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(r, order))
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.ListOrdersForUser(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list orders failed")
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, h.orderJSON(r, order))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.ConfirmPayment(r.Context(), actorFrom(r), chi.URLParam(r, "orderId"), req.TransactionRef)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(r, order))
}

func (h *Handler) SetWallet(w http.ResponseWriter, r *http.Request) {
	var req setWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.Orders.SetWallet(r.Context(), actorFrom(r), req.Address); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": req.Address})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	statuses := []models.OrderStatus{models.VerificationPending, models.Verifying}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, s := range splitComma(raw) {
			statuses = append(statuses, models.OrderStatus(s))
		}
	}
	orders, err := h.Store.ListOrdersByStatus(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list orders failed")
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, h.orderJSON(r, order))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) LockOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Lock(r.Context(), actorFrom(r), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(r, order))
}

func (h *Handler) DecideOrder(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.Decide(r.Context(), actorFrom(r), chi.URLParam(r, "orderId"), req.Decision, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(r, order))
}

func (h *Handler) ReprocessOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Reprocess(r.Context(), actorFrom(r), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(r, order))
}

func (h *Handler) BulkReprocess(w http.ResponseWriter, r *http.Request) {
	var req bulkReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.Orders.BulkReprocess(r.Context(), actorFrom(r), req.OrderIDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *services.ConflictError
	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, store.ErrDuplicateAddress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotOrderOwner),
		errors.Is(err, services.ErrNotLockHolder),
		errors.Is(err, services.ErrAdminRequired):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrAmountNotPositive),
		errors.Is(err, services.ErrAmountBelowMinimum),
		errors.Is(err, services.ErrInvalidDecision),
		errors.Is(err, services.ErrInvalidWalletAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrWalletRequired):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, upi.ErrNoPaymentMethods), errors.Is(err, upi.ErrSelectorBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "request failed")
	}
}

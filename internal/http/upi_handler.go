package http

import (
	"encoding/json"
	"net/http"
	"time"

	"nexamarket/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type upiRequest struct {
	Address       string           `json:"address"`
	DisplayName   string           `json:"displayName"`
	IsActive      bool             `json:"isActive"`
	ScheduleStart *string          `json:"scheduleStart"`
	ScheduleEnd   *string          `json:"scheduleEnd"`
	Priority      int              `json:"priority"`
	DailyLimit    *decimal.Decimal `json:"dailyLimit"`
	IsFallback    bool             `json:"isFallback"`
}

type upiResponse struct {
	UpiID         string           `json:"upiId"`
	Address       string           `json:"address"`
	DisplayName   string           `json:"displayName"`
	IsActive      bool             `json:"isActive"`
	ScheduleStart *string          `json:"scheduleStart,omitempty"`
	ScheduleEnd   *string          `json:"scheduleEnd,omitempty"`
	Priority      int              `json:"priority"`
	LastUsedAt    string           `json:"lastUsedAt,omitempty"`
	UsageCount    int64            `json:"usageCount"`
	DailyLimit    *decimal.Decimal `json:"dailyLimit,omitempty"`
	IsFallback    bool             `json:"isFallback"`
}

func upiJSON(u *models.UpiAddress) upiResponse {
	resp := upiResponse{
		UpiID:         u.UpiID,
		Address:       u.Address,
		DisplayName:   u.DisplayName,
		IsActive:      u.IsActive,
		ScheduleStart: u.ScheduleStart,
		ScheduleEnd:   u.ScheduleEnd,
		Priority:      u.Priority,
		UsageCount:    u.UsageCount,
		DailyLimit:    u.DailyLimit,
		IsFallback:    u.IsFallback,
	}
	if u.LastUsedAt != nil {
		resp.LastUsedAt = u.LastUsedAt.Format(time.RFC3339)
	}
	return resp
}

func validSchedule(start, end *string) bool {
	if (start == nil) != (end == nil) {
		return false
	}
	if start == nil {
		return true
	}
	for _, v := range []string{*start, *end} {
		if _, err := time.Parse("15:04", v); err != nil {
			return false
		}
	}
	return true
}

func (h *Handler) CreateUpi(w http.ResponseWriter, r *http.Request) {
	var req upiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if !validSchedule(req.ScheduleStart, req.ScheduleEnd) {
		writeError(w, http.StatusBadRequest, "schedule must be a pair of HH:MM times")
		return
	}

	u := &models.UpiAddress{
		UpiID:         uuid.NewString(),
		Address:       req.Address,
		DisplayName:   req.DisplayName,
		IsActive:      req.IsActive,
		ScheduleStart: req.ScheduleStart,
		ScheduleEnd:   req.ScheduleEnd,
		Priority:      req.Priority,
		DailyLimit:    req.DailyLimit,
		IsFallback:    req.IsFallback,
	}
	if err := h.Store.CreateUpi(r.Context(), u); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upiJSON(u))
}

func (h *Handler) UpdateUpi(w http.ResponseWriter, r *http.Request) {
	var req upiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !validSchedule(req.ScheduleStart, req.ScheduleEnd) {
		writeError(w, http.StatusBadRequest, "schedule must be a pair of HH:MM times")
		return
	}

	u, err := h.Store.GetUpi(r.Context(), chi.URLParam(r, "upiId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	u.Address = req.Address
	u.DisplayName = req.DisplayName
	u.IsActive = req.IsActive
	u.ScheduleStart = req.ScheduleStart
	u.ScheduleEnd = req.ScheduleEnd
	u.Priority = req.Priority
	u.DailyLimit = req.DailyLimit
	u.IsFallback = req.IsFallback

	if err := h.Store.UpdateUpi(r.Context(), u); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upiJSON(u))
}

func (h *Handler) DeleteUpi(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteUpi(r.Context(), chi.URLParam(r, "upiId")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListUpis(w http.ResponseWriter, r *http.Request) {
	upis, err := h.Store.ListUpis(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list upi failed")
		return
	}
	out := make([]upiResponse, 0, len(upis))
	for _, u := range upis {
		out = append(out, upiJSON(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type priceRequest struct {
	INRPerNexa decimal.Decimal `json:"inrPerNexa"`
}

func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !req.INRPerNexa.IsPositive() {
		writeError(w, http.StatusBadRequest, "rate must be positive")
		return
	}
	if err := h.Store.SetPrice(r.Context(), req.INRPerNexa); err != nil {
		writeError(w, http.StatusInternalServerError, "set price failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"inrPerNexa": req.INRPerNexa.String()})
}

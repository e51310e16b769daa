package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/middleware"
	"github.com/milestonepay/backend/internal/models"
	"github.com/milestonepay/backend/internal/services"
)

// PaymentHandler serves deposit and payout endpoints.
type PaymentHandler struct {
	Lifecycle *services.Lifecycle
	Payouts   *services.PayoutProcessor
	Logger    *slog.Logger
}

type depositRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

// Deposit handles POST /api/v1/projects/{id}/deposit. The gateway charge runs
// synchronously; a declined charge still leaves a failed transaction behind
// as the durable record.
func (h *PaymentHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	projectID, ok := extractID(r, "/api/v1/projects/")
	if !ok {
		http.Error(w, `{"error":"invalid project id"}`, http.StatusBadRequest)
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	// The deposit guard already validated amount and currency; use its values
	// so the two layers cannot disagree.
	if amount, currency, ok := middleware.DepositFromCtx(r.Context()); ok {
		req.Amount, req.Currency = amount, currency
	}
	t, err := h.Lifecycle.Deposit(r.Context(), actor, projectID, req.Amount, req.Currency, req.Method)
	if err != nil {
		h.Logger.Error("deposit", "project_id", projectID, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type estimateRequest struct {
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
}

type estimateResponse struct {
	Amount        int64 `json:"amount"`
	PlatformFee   int64 `json:"platform_fee"`
	ProcessingFee int64 `json:"processing_fee"`
	NetAmount     int64 `json:"net_amount"`
}

// EstimatePayout handles POST /api/v1/payouts/estimate. The quote uses the
// same fee formula as the eventual payout, so they never disagree.
func (h *PaymentHandler) EstimatePayout(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	fees, err := h.Payouts.Estimate(req.Amount, req.Kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		Amount:        req.Amount,
		PlatformFee:   fees.Platform,
		ProcessingFee: fees.Processing,
		NetAmount:     fees.Net,
	})
}

type payoutRequest struct {
	MethodID string `json:"method_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// RequestPayout handles POST /api/v1/payouts.
func (h *PaymentHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	methodID, err := uuid.Parse(req.MethodID)
	if err != nil {
		http.Error(w, `{"error":"invalid method_id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.Payouts.Request(r.Context(), actor, methodID, req.Amount, req.Currency)
	if err != nil {
		h.Logger.Error("request payout", "error", err)
		writeServiceError(w, err)
		return
	}
	// 202: the transfer itself runs in the background worker.
	writeJSON(w, http.StatusAccepted, p)
}

// CancelPayout handles POST /api/v1/payouts/{id}/cancel.
func (h *PaymentHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := extractID(r, "/api/v1/payouts/")
	if !ok {
		http.Error(w, `{"error":"invalid payout id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Payouts.Cancel(r.Context(), actor, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.PayoutStatusCancelled})
}

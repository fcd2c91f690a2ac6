// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-vote/auth"
	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/payment"
	"github.com/danielhkuo/quickly-vote/store"
)

type CallbackHandler struct {
	payments *store.Payments
	credits  payment.CreditDispatcher
	cfg      cliparse.Config
}

func NewCallbackHandler(payments *store.Payments, credits payment.CreditDispatcher, cfg cliparse.Config) *CallbackHandler {
	return &CallbackHandler{payments: payments, credits: credits, cfg: cfg}
}

// Callback handles POST /api/payments/callback
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	if h.cfg.CallbackSecret != "" {
		if err := auth.VerifyCallback(body, r.Header.Get("X-Gateway-Signature"), h.cfg.CallbackSecret); err != nil {
			slog.Warn("rejected gateway callback", "error", err, "remote", middleware.GetClientIP(r))
			middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	var req models.CallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.TransactionID == "" && req.IdempotencyKey == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "transactionId or idempotencyKey is required")
		return
	}
	if req.Status != models.StatusCompleted && req.Status != models.StatusFailed {
		middleware.ErrorResponse(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}

	rec, err := h.payments.Reconcile(r.Context(), req.IdempotencyKey, req.TransactionID, req.Status, req.Message)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		slog.Error("failed to reconcile payment", "error", err, "transaction_id", req.TransactionID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if rec.Status != req.Status {
		slog.Warn("callback conflicts with settled payment, needs reconciliation",
			"idempotency_key", rec.IdempotencyKey,
			"stored_status", rec.Status,
			"callback_status", req.Status,
		)
	}

	// Credits are deduplicated per payment, so re-dispatching for a payment
	// already credited at initiation is a no-op.
	if rec.Status == models.StatusCompleted {
		h.credits.Dispatch(ledger.Credit{
			PaymentKey:  rec.IdempotencyKey,
			CandidateID: rec.CandidateID,
			Votes:       ledger.VotesFor(rec.Amount, h.cfg.PricePerVote),
		})
	}

	slog.Info("payment reconciled", "idempotency_key", rec.IdempotencyKey, "status", rec.Status)

	middleware.JSONResponse(w, http.StatusOK, models.PaymentResult{
		Status:  true,
		Message: "Callback processed",
		Data: &models.PaymentData{
			TransactionID:  deref(rec.TransactionID),
			IdempotencyKey: rec.IdempotencyKey,
		},
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

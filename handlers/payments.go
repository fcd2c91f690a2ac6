// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/payment"
	"github.com/danielhkuo/quickly-vote/store"
)

// PaymentProcessor runs a payment request end to end.
type PaymentProcessor interface {
	Process(ctx context.Context, req models.PaymentRequest) (models.PaymentResult, error)
}

type PaymentHandler struct {
	processor PaymentProcessor
	payments  *store.Payments
	cfg       cliparse.Config
}

func NewPaymentHandler(processor PaymentProcessor, payments *store.Payments, cfg cliparse.Config) *PaymentHandler {
	return &PaymentHandler{processor: processor, payments: payments, cfg: cfg}
}

// ProcessPayment handles POST /api/payments
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.JSONResponse(w, http.StatusBadRequest, models.PaymentResult{
			Status:  false,
			Message: "Invalid JSON",
		})
		return
	}

	// Header is accepted when the body omits the key
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.processor.Process(r.Context(), req)
	status := payment.HTTPStatus(err)
	if err != nil && status >= http.StatusInternalServerError {
		slog.Error("payment failed", "kind", payment.KindOf(err).String(), "error", err)
	}

	if res.Data != nil && res.Data.IdempotencyKey != "" {
		w.Header().Set("Idempotency-Key", res.Data.IdempotencyKey)
	}
	middleware.JSONResponse(w, status, res)
}

// GetPayment handles GET /api/payments/{key}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "idempotency key is required")
		return
	}

	rec, err := h.payments.FindByKey(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		slog.Error("failed to query payment", "error", err, "idempotency_key", key)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, rec)
}

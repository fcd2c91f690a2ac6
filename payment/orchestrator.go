// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-vote/gateway"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/phone"
	"github.com/danielhkuo/quickly-vote/store"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxKeyLength = 128

// amountPlaces matches the NUMERIC(14, 2) amount column.
const amountPlaces = 2

// Public messages
const (
	msgValidation  = "Validation failed"
	msgUnavailable = "Payment service is temporarily unavailable. Please try again."
	msgTimeout     = "Payment service did not respond in time. Please try again with the same idempotency key."
	msgInternal    = "An unexpected error occurred. Please try again."
)

// Gateway issues payment calls.
type Gateway interface {
	Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResponse, error)
}

// RecordStore persists payment records.
type RecordStore interface {
	Upsert(ctx context.Context, rec models.PaymentRecord) (models.PaymentRecord, error)
	FindByKey(ctx context.Context, key string) (models.PaymentRecord, error)
}

// CreditDispatcher hands a vote credit off for asynchronous application.
// Dispatch must not block.
type CreditDispatcher interface {
	Dispatch(c ledger.Credit)
}

// Config tunes the orchestrator.
type Config struct {
	PricePerVote   decimal.Decimal
	MinAmount      decimal.Decimal
	GatewayTimeout time.Duration
	StoreTimeout   time.Duration
	DevMode        bool
}

// Orchestrator runs one payment request end to end: validation, phone
// normalization, idempotency, the gateway call, persistence and vote
// credit dispatch.
type Orchestrator struct {
	gateway Gateway
	records RecordStore
	credits CreditDispatcher
	cfg     Config
	newKey  func() string
}

func New(gw Gateway, records RecordStore, credits CreditDispatcher, cfg Config) *Orchestrator {
	if !cfg.PricePerVote.IsPositive() {
		cfg.PricePerVote = decimal.NewFromInt(10)
	}
	if !cfg.MinAmount.IsPositive() {
		cfg.MinAmount = decimal.NewFromInt(1)
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Orchestrator{
		gateway: gw,
		records: records,
		credits: credits,
		cfg:     cfg,
		newKey:  func() string { return uuid.NewString() },
	}
}

// Process handles one payment request. The returned PaymentResult is always
// populated and safe to send to the caller; err is nil on success and an
// *Error otherwise. A panic anywhere inside becomes a KindInternal error.
func (o *Orchestrator) Process(ctx context.Context, req models.PaymentRequest) (res models.PaymentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing payment", "panic", r, "stack", string(debug.Stack()))
			msg := msgInternal
			if o.cfg.DevMode {
				msg = fmt.Sprintf("%s (%v)", msgInternal, r)
			}
			res = models.PaymentResult{Status: false, Message: msg}
			err = &Error{Kind: KindInternal, Message: msg, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return o.process(ctx, req)
}

func (o *Orchestrator) process(ctx context.Context, req models.PaymentRequest) (models.PaymentResult, error) {
	method, fields := o.validate(req)
	if len(fields) > 0 {
		return validationFailure(fields)
	}

	normalized, err := phone.Normalize(req.PhoneNumber)
	if err != nil {
		var verr *phone.ValidationError
		if errors.As(err, &verr) {
			slog.Info("rejected phone number", "attempted", phone.Mask(verr.Attempted))
		}
		return validationFailure(map[string]string{
			"phoneNumber": "Invalid phone number. Use 07XXXXXXXX, +2547XXXXXXXX or 2547XXXXXXXX",
		})
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = o.newKey()
	}

	rec := models.PaymentRecord{
		IdempotencyKey: key,
		Amount:         req.Amount,
		CandidateID:    req.CandidateID.String(),
		ChannelCode:    req.ChannelCode,
		PhoneNumber:    normalized,
		PaymentMethod:  method,
		ShowNames:      req.ShowNames,
		ShowNumber:     req.WantsNumberShown(),
		Status:         models.StatusPending,
	}
	if req.ShowNames {
		rec.FirstName = strings.TrimSpace(req.FirstName)
		rec.SecondName = strings.TrimSpace(req.SecondName)
	}

	if existing, ok := o.lookup(ctx, key); ok {
		if existing.CandidateID != rec.CandidateID || !existing.Amount.Equal(rec.Amount) {
			return validationFailure(map[string]string{
				"idempotencyKey": "Idempotency key was already used for a different payment",
			})
		}
		if existing.Status == models.StatusProcessing || existing.Status == models.StatusCompleted {
			slog.Info("replaying settled payment", "idempotency_key", key, "status", existing.Status)
			return replayResult(existing), nil
		}
	}

	// A crash during the gateway call leaves this row behind for reconciliation.
	o.persist(ctx, rec)

	votes := ledger.VotesFor(req.Amount, o.cfg.PricePerVote)

	resp, err := o.charge(ctx, gateway.ChargeRequest{
		PhoneNumber:    normalized,
		Amount:         req.Amount,
		CandidateID:    rec.CandidateID,
		ChannelCode:    req.ChannelCode,
		PaymentMethod:  method,
		AuthCode:       req.AuthCode,
		IdempotencyKey: key,
		ShowNumber:     rec.ShowNumber,
		FirstName:      rec.FirstName,
		SecondName:     rec.SecondName,
	})
	if err != nil {
		return o.gatewayFailure(ctx, rec, resp, err)
	}

	rec.Status = models.StatusProcessing
	rec.Message = resp.Message
	if rec.Message == "" {
		rec.Message = fmt.Sprintf("Payment initiated for %s %s", humanize.Comma(votes), plural(votes, "vote", "votes"))
	}
	rec.TransactionID = optional(resp.Data.TransactionID)
	rec.CheckoutURL = optional(resp.Data.CheckoutURL)

	if stored, ok := o.persist(ctx, rec); ok && stored.Status == models.StatusFailed {
		slog.Warn("gateway accepted a payment already marked failed, needs reconciliation",
			"idempotency_key", key, "transaction_id", resp.Data.TransactionID)
	}

	o.credits.Dispatch(ledger.Credit{
		PaymentKey:  key,
		CandidateID: rec.CandidateID,
		Votes:       votes,
	})

	slog.Info("payment initiated",
		"idempotency_key", key,
		"candidate_id", rec.CandidateID,
		"amount", req.Amount.String(),
		"votes", votes,
		"method", method,
		"phone", phone.Mask(normalized),
	)

	return models.PaymentResult{
		Status:  true,
		Message: rec.Message,
		Data: &models.PaymentData{
			TransactionID:  resp.Data.TransactionID,
			CheckoutURL:    resp.Data.CheckoutURL,
			IdempotencyKey: key,
		},
	}, nil
}

// validate checks the request fields and resolves the payment method.
func (o *Orchestrator) validate(req models.PaymentRequest) (string, map[string]string) {
	fields := make(map[string]string)

	if req.Amount.LessThan(o.cfg.MinAmount) {
		fields["amount"] = fmt.Sprintf("Amount must be at least %s", o.cfg.MinAmount.String())
	} else if !req.Amount.Equal(req.Amount.Truncate(amountPlaces)) {
		fields["amount"] = fmt.Sprintf("Amount must have at most %d decimal places", amountPlaces)
	}
	if req.CandidateID == "" {
		fields["candidateId"] = "Candidate is required"
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		fields["phoneNumber"] = "Phone number is required"
	}
	if strings.TrimSpace(req.AuthCode) == "" {
		fields["authCode"] = "Auth code is required"
	}
	if len(strings.TrimSpace(req.IdempotencyKey)) > maxKeyLength {
		fields["idempotencyKey"] = fmt.Sprintf("Idempotency key must be at most %d characters", maxKeyLength)
	}

	method, ok := models.MethodForChannel(req.ChannelCode)
	if !ok {
		fields["channelCode"] = "Unsupported channel code"
		return "", fields
	}
	if req.PaymentMethod != "" {
		if !models.IsKnownMethod(req.PaymentMethod) {
			fields["paymentMethod"] = "Unsupported payment method"
			return "", fields
		}
		method = req.PaymentMethod
	}
	return method, fields
}

func (o *Orchestrator) charge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResponse, error) {
	// The charge must complete even if the caller goes away.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.GatewayTimeout)
	defer cancel()
	return o.gateway.Charge(callCtx, req)
}

func (o *Orchestrator) gatewayFailure(ctx context.Context, rec models.PaymentRecord, resp gateway.ChargeResponse, err error) (models.PaymentResult, error) {
	var (
		kind    Kind
		message string
	)

	var declined *gateway.DeclinedError
	var unreachable *gateway.UnreachableError
	switch {
	case errors.As(err, &declined):
		kind = KindGatewayDeclined
		message = declined.Message
		slog.Info("payment declined by gateway", "idempotency_key", rec.IdempotencyKey, "status_code", declined.StatusCode, "message", declined.Message)
	case errors.As(err, &unreachable) && unreachable.Timeout:
		kind = KindGatewayTimeout
		message = msgTimeout
		slog.Error("payment gateway timed out", "idempotency_key", rec.IdempotencyKey, "error", err)
	default:
		kind = KindGatewayUnreachable
		message = msgUnavailable
		slog.Error("payment gateway unreachable", "idempotency_key", rec.IdempotencyKey, "error", err)
	}

	rec.Status = models.StatusFailed
	rec.Message = message
	rec.TransactionID = optional(resp.Data.TransactionID)
	rec.CheckoutURL = optional(resp.Data.CheckoutURL)
	o.persist(ctx, rec)

	return models.PaymentResult{
			Status:  false,
			Message: message,
			Data: &models.PaymentData{
				TransactionID:  resp.Data.TransactionID,
				IdempotencyKey: rec.IdempotencyKey,
			},
		}, &Error{
			Kind:    kind,
			Message: message,
			Err:     err,
		}
}

// lookup returns the stored record for key. Store faults count as a miss.
func (o *Orchestrator) lookup(ctx context.Context, key string) (models.PaymentRecord, bool) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StoreTimeout)
	defer cancel()

	rec, err := o.records.FindByKey(storeCtx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to look up payment request", "kind", KindPersistence.String(), "idempotency_key", key, "error", err)
		}
		return models.PaymentRecord{}, false
	}
	return rec, true
}

// persist upserts rec. Failures are logged and never reach the caller.
func (o *Orchestrator) persist(ctx context.Context, rec models.PaymentRecord) (models.PaymentRecord, bool) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StoreTimeout)
	defer cancel()

	stored, err := o.records.Upsert(storeCtx, rec)
	if err != nil {
		slog.Error("failed to persist payment request",
			"kind", KindPersistence.String(),
			"idempotency_key", rec.IdempotencyKey,
			"status", rec.Status,
			"error", err,
		)
		return models.PaymentRecord{}, false
	}
	return stored, true
}

func validationFailure(fields map[string]string) (models.PaymentResult, error) {
	return models.PaymentResult{
			Status:  false,
			Message: msgValidation,
			Errors:  fields,
		}, &Error{
			Kind:    KindValidation,
			Message: msgValidation,
			Fields:  fields,
		}
}

func replayResult(rec models.PaymentRecord) models.PaymentResult {
	data := &models.PaymentData{IdempotencyKey: rec.IdempotencyKey}
	if rec.TransactionID != nil {
		data.TransactionID = *rec.TransactionID
	}
	if rec.CheckoutURL != nil {
		data.CheckoutURL = *rec.CheckoutURL
	}
	return models.PaymentResult{Status: true, Message: rec.Message, Data: data}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

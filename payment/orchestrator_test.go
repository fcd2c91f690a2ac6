// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-vote/gateway"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls []gateway.ChargeRequest
	resp  gateway.ChargeResponse
	err   error
	panic bool
}

func (f *fakeGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.panic {
		panic("gateway exploded")
	}
	return f.resp, f.err
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]models.PaymentRecord
	upserts []models.PaymentRecord
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.PaymentRecord)}
}

func (f *fakeStore) Upsert(ctx context.Context, rec models.PaymentRecord) (models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, rec)
	if f.err != nil {
		return models.PaymentRecord{}, f.err
	}
	if existing, ok := f.records[rec.IdempotencyKey]; ok {
		if models.StatusRank(rec.Status) <= models.StatusRank(existing.Status) {
			rec.Status = existing.Status
			rec.Message = existing.Message
		}
		if existing.TransactionID != nil {
			rec.TransactionID = existing.TransactionID
		}
	}
	f.records[rec.IdempotencyKey] = rec
	return rec, nil
}

func (f *fakeStore) FindByKey(ctx context.Context, key string) (models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.PaymentRecord{}, f.err
	}
	rec, ok := f.records[key]
	if !ok {
		return models.PaymentRecord{}, store.ErrNotFound
	}
	return rec, nil
}

type fakeCredits struct {
	mu      sync.Mutex
	credits []ledger.Credit
}

func (f *fakeCredits) Dispatch(c ledger.Credit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, c)
}

func okGateway() *fakeGateway {
	gw := &fakeGateway{}
	gw.resp.Status = true
	gw.resp.Message = "Payment initiated. Check your phone."
	gw.resp.Data.TransactionID = "TX-1"
	gw.resp.Data.CheckoutURL = "https://pay.test/TX-1"
	return gw
}

func validRequest() models.PaymentRequest {
	return models.PaymentRequest{
		Amount:      decimal.NewFromInt(100),
		CandidateID: "12",
		PhoneNumber: "0712345678",
		ChannelCode: models.ChannelMpesa,
		AuthCode:    "auth-123",
	}
}

func newTestOrchestrator(gw Gateway, st RecordStore, cr CreditDispatcher) *Orchestrator {
	return New(gw, st, cr, Config{
		PricePerVote:   decimal.NewFromInt(10),
		MinAmount:      decimal.NewFromInt(1),
		GatewayTimeout: time.Second,
		StoreTimeout:   time.Second,
	})
}

func TestProcess_Success(t *testing.T) {
	gw, st, cr := okGateway(), newFakeStore(), &fakeCredits{}
	o := newTestOrchestrator(gw, st, cr)

	res, err := o.Process(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, res.Status)
	require.NotNil(t, res.Data)
	assert.Equal(t, "TX-1", res.Data.TransactionID)
	assert.NotEmpty(t, res.Data.IdempotencyKey)

	require.Equal(t, 1, gw.callCount())
	call := gw.calls[0]
	assert.Equal(t, "254712345678", call.PhoneNumber)
	assert.Equal(t, models.MethodMpesa, call.PaymentMethod)
	assert.Equal(t, res.Data.IdempotencyKey, call.IdempotencyKey)
	assert.True(t, call.ShowNumber)
	assert.Empty(t, call.FirstName)

	rec := st.records[res.Data.IdempotencyKey]
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Equal(t, "254712345678", rec.PhoneNumber)
	require.NotNil(t, rec.TransactionID)
	assert.Equal(t, "TX-1", *rec.TransactionID)

	require.Len(t, cr.credits, 1)
	assert.Equal(t, ledger.Credit{PaymentKey: res.Data.IdempotencyKey, CandidateID: "12", Votes: 10}, cr.credits[0])
}

func TestProcess_VoteCount(t *testing.T) {
	tests := []struct {
		amount int64
		votes  int64
	}{
		{100, 10},
		{25, 2},
		{5, 1},
		{1, 1},
	}

	for _, tt := range tests {
		gw, cr := okGateway(), &fakeCredits{}
		o := newTestOrchestrator(gw, newFakeStore(), cr)

		req := validRequest()
		req.Amount = decimal.NewFromInt(tt.amount)
		_, err := o.Process(context.Background(), req)
		require.NoError(t, err)

		require.Len(t, cr.credits, 1)
		assert.Equal(t, tt.votes, cr.credits[0].Votes, "amount %d", tt.amount)
	}
}

func TestProcess_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.PaymentRequest)
		field  string
	}{
		{"malformed phone", func(r *models.PaymentRequest) { r.PhoneNumber = "12345" }, "phoneNumber"},
		{"missing phone", func(r *models.PaymentRequest) { r.PhoneNumber = "  " }, "phoneNumber"},
		{"zero amount", func(r *models.PaymentRequest) { r.Amount = decimal.Zero }, "amount"},
		{"sub-cent amount", func(r *models.PaymentRequest) { r.Amount = decimal.RequireFromString("10.555") }, "amount"},
		{"missing candidate", func(r *models.PaymentRequest) { r.CandidateID = "" }, "candidateId"},
		{"unknown channel", func(r *models.PaymentRequest) { r.ChannelCode = 1 }, "channelCode"},
		{"missing auth code", func(r *models.PaymentRequest) { r.AuthCode = "" }, "authCode"},
		{"unknown method", func(r *models.PaymentRequest) { r.PaymentMethod = "cash" }, "paymentMethod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, st, cr := okGateway(), newFakeStore(), &fakeCredits{}
			o := newTestOrchestrator(gw, st, cr)

			req := validRequest()
			tt.mutate(&req)
			res, err := o.Process(context.Background(), req)

			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
			assert.False(t, res.Status)
			assert.Contains(t, res.Errors, tt.field)

			assert.Zero(t, gw.callCount(), "no gateway call on validation failure")
			assert.Empty(t, st.upserts, "no record on validation failure")
			assert.Empty(t, cr.credits)
		})
	}
}

func TestProcess_AmountWithTrailingZerosAccepted(t *testing.T) {
	gw := okGateway()
	o := newTestOrchestrator(gw, newFakeStore(), &fakeCredits{})

	req := validRequest()
	req.Amount = decimal.RequireFromString("10.500")
	res, err := o.Process(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, res.Status)
	assert.Equal(t, 1, gw.callCount())
}

func TestProcess_ExplicitMethodAndNames(t *testing.T) {
	gw := okGateway()
	o := newTestOrchestrator(gw, newFakeStore(), &fakeCredits{})

	show := false
	req := validRequest()
	req.ChannelCode = models.ChannelCard
	req.PaymentMethod = models.MethodCard
	req.ShowNames = true
	req.FirstName = "Jane"
	req.SecondName = "Doe"
	req.ShowNumber = &show

	_, err := o.Process(context.Background(), req)
	require.NoError(t, err)

	call := gw.calls[0]
	assert.Equal(t, models.MethodCard, call.PaymentMethod)
	assert.Equal(t, "Jane", call.FirstName)
	assert.Equal(t, "Doe", call.SecondName)
	assert.False(t, call.ShowNumber)
}

func TestProcess_GatewayDeclined(t *testing.T) {
	gw, st, cr := &fakeGateway{}, newFakeStore(), &fakeCredits{}
	gw.err = &gateway.DeclinedError{StatusCode: http.StatusBadRequest, Message: "Insufficient funds"}
	o := newTestOrchestrator(gw, st, cr)

	res, err := o.Process(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, KindGatewayDeclined, KindOf(err))
	assert.Equal(t, http.StatusPaymentRequired, HTTPStatus(err))
	assert.False(t, res.Status)
	assert.Equal(t, "Insufficient funds", res.Message)

	rec := st.records[res.Data.IdempotencyKey]
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "Insufficient funds", rec.Message)
	assert.Empty(t, cr.credits)
}

func TestProcess_GatewayTimeout(t *testing.T) {
	gw, st, cr := &fakeGateway{}, newFakeStore(), &fakeCredits{}
	gw.err = &gateway.UnreachableError{Timeout: true, Err: context.DeadlineExceeded}
	o := newTestOrchestrator(gw, st, cr)

	res, err := o.Process(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnreachable)
	assert.Equal(t, KindGatewayTimeout, KindOf(err))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(err))
	assert.False(t, res.Status)

	rec := st.records[res.Data.IdempotencyKey]
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Empty(t, cr.credits)
}

func TestProcess_GatewayUnreachable(t *testing.T) {
	gw := &fakeGateway{err: &gateway.UnreachableError{Err: errors.New("connection refused")}}
	o := newTestOrchestrator(gw, newFakeStore(), &fakeCredits{})

	_, err := o.Process(context.Background(), validRequest())
	assert.Equal(t, KindGatewayUnreachable, KindOf(err))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
}

func TestProcess_IdempotentReplay(t *testing.T) {
	gw, st, cr := okGateway(), newFakeStore(), &fakeCredits{}
	o := newTestOrchestrator(gw, st, cr)

	req := validRequest()
	req.IdempotencyKey = "client-key-1"

	first, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.callCount(), "settled payment is not charged twice")
	assert.Len(t, cr.credits, 1, "settled payment is not credited twice")
	assert.Equal(t, first.Data.TransactionID, second.Data.TransactionID)
	assert.Equal(t, "client-key-1", second.Data.IdempotencyKey)
}

func TestProcess_RetryAfterFailureReusesKey(t *testing.T) {
	gw, st, cr := &fakeGateway{}, newFakeStore(), &fakeCredits{}
	gw.err = &gateway.UnreachableError{Timeout: true, Err: context.DeadlineExceeded}
	o := newTestOrchestrator(gw, st, cr)

	req := validRequest()
	req.IdempotencyKey = "retry-key"
	_, err := o.Process(context.Background(), req)
	require.Error(t, err)

	gw.err = nil
	gw.resp.Status = true
	gw.resp.Data.TransactionID = "TX-late"
	res, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Status)

	require.Equal(t, 2, gw.callCount())
	assert.Equal(t, gw.calls[0].IdempotencyKey, gw.calls[1].IdempotencyKey)

	rec := st.records["retry-key"]
	assert.Equal(t, models.StatusFailed, rec.Status, "failed is absorbing")
	require.NotNil(t, rec.TransactionID)
	assert.Equal(t, "TX-late", *rec.TransactionID)
	assert.Len(t, cr.credits, 1)
}

func TestProcess_KeyReusedForDifferentPayment(t *testing.T) {
	gw, st := okGateway(), newFakeStore()
	o := newTestOrchestrator(gw, st, &fakeCredits{})

	req := validRequest()
	req.IdempotencyKey = "shared"
	_, err := o.Process(context.Background(), req)
	require.NoError(t, err)

	req.Amount = decimal.NewFromInt(500)
	res, err := o.Process(context.Background(), req)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, res.Errors, "idempotencyKey")
	assert.Equal(t, 1, gw.callCount())
}

func TestProcess_PersistenceFailureNotSurfaced(t *testing.T) {
	gw, st, cr := okGateway(), newFakeStore(), &fakeCredits{}
	st.err = errors.New("database is locked")
	o := newTestOrchestrator(gw, st, cr)

	res, err := o.Process(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, res.Status)
	assert.Equal(t, 1, gw.callCount())
	assert.Len(t, cr.credits, 1)
}

func TestProcess_CallerCancellationDoesNotAbortCharge(t *testing.T) {
	gw, st := okGateway(), newFakeStore()
	o := newTestOrchestrator(gw, st, &fakeCredits{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Process(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, st.records[res.Data.IdempotencyKey].Status)
}

func TestProcess_PanicBecomesInternalError(t *testing.T) {
	gw := &fakeGateway{panic: true}

	o := newTestOrchestrator(gw, newFakeStore(), &fakeCredits{})
	res, err := o.Process(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, msgInternal, res.Message)

	o.cfg.DevMode = true
	res, _ = o.Process(context.Background(), validRequest())
	assert.Contains(t, res.Message, "gateway exploded")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(&Error{Kind: KindRateLimited}))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(&Error{Kind: KindPersistence}))
}

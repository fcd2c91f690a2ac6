// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/gateway"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/payment"
	"github.com/danielhkuo/quickly-vote/store"
	"github.com/danielhkuo/quickly-vote/testutil"
)

type testEnv struct {
	db       *sql.DB
	cfg      cliparse.Config
	gateway  *testutil.FakeGateway
	payments *store.Payments
	queue    *ledger.Queue
	handler  *PaymentHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	gw := testutil.NewFakeGateway(t)
	cfg.GatewayURL = gw.URL

	payments := store.NewPayments(db)
	queue := ledger.NewQueue(ledger.New(db), ledger.QueueConfig{Workers: 1})
	t.Cleanup(func() { queue.Close(context.Background()) })

	orch := payment.New(gateway.NewClient(cfg.GatewayURL, cfg.GatewayTimeout), payments, queue, payment.Config{
		PricePerVote:   cfg.PricePerVote,
		MinAmount:      cfg.MinAmount,
		GatewayTimeout: cfg.GatewayTimeout,
		StoreTimeout:   cfg.StoreTimeout,
	})

	return &testEnv{
		db:       db,
		cfg:      cfg,
		gateway:  gw,
		payments: payments,
		queue:    queue,
		handler:  NewPaymentHandler(orch, payments, cfg),
	}
}

// drain waits for queued vote credits to be applied.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	if err := e.queue.Close(context.Background()); err != nil {
		t.Fatalf("Failed to drain credit queue: %v", err)
	}
}

func paymentBody(candidateID string) map[string]any {
	return map[string]any{
		"amount":      100,
		"candidateId": candidateID,
		"phoneNumber": "0712345678",
		"channelCode": models.ChannelMpesa,
		"authCode":    "auth-123",
	}
}

func TestProcessPayment_Success(t *testing.T) {
	env := newTestEnv(t)
	candidateID := testutil.CreateTestCandidate(t, env.db, "Alice")

	req := testutil.MakeRequest("POST", "/api/payments", paymentBody(candidateID), nil)
	w := httptest.NewRecorder()
	env.handler.ProcessPayment(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var res models.PaymentResult
	testutil.AssertJSON(t, w, &res)
	if !res.Status {
		t.Fatalf("Expected status true, got %+v", res)
	}
	if res.Data == nil || res.Data.TransactionID != "TX-TEST" {
		t.Fatalf("Expected transaction id TX-TEST, got %+v", res.Data)
	}
	if w.Header().Get("Idempotency-Key") != res.Data.IdempotencyKey {
		t.Error("Expected Idempotency-Key response header to match body")
	}

	calls := env.gateway.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 gateway call, got %d", len(calls))
	}
	if calls[0].Body["phoneNumber"] != "254712345678" {
		t.Errorf("Expected normalized phone, got %v", calls[0].Body["phoneNumber"])
	}
	if calls[0].Header.Get("Idempotency-Key") != res.Data.IdempotencyKey {
		t.Error("Expected idempotency key header on gateway call")
	}

	rec, err := env.payments.FindByKey(context.Background(), res.Data.IdempotencyKey)
	if err != nil {
		t.Fatalf("Expected stored record: %v", err)
	}
	if rec.Status != models.StatusProcessing {
		t.Errorf("Expected status processing, got %s", rec.Status)
	}

	env.drain(t)
	if votes := testutil.CandidateVotes(t, env.db, candidateID); votes != 10 {
		t.Errorf("Expected 10 votes, got %d", votes)
	}
}

func TestProcessPayment_IdempotencyKeyHeader(t *testing.T) {
	env := newTestEnv(t)
	candidateID := testutil.CreateTestCandidate(t, env.db, "Alice")

	for i := 0; i < 2; i++ {
		req := testutil.MakeRequest("POST", "/api/payments", paymentBody(candidateID), map[string]string{
			"Idempotency-Key": "client-key-42",
		})
		w := httptest.NewRecorder()
		env.handler.ProcessPayment(w, req)
		testutil.AssertStatus(t, w, http.StatusOK)
	}

	if n := len(env.gateway.Calls()); n != 1 {
		t.Errorf("Expected replay to skip the gateway, got %d calls", n)
	}

	env.drain(t)
	if votes := testutil.CandidateVotes(t, env.db, candidateID); votes != 10 {
		t.Errorf("Expected votes credited once (10), got %d", votes)
	}
}

func TestProcessPayment_Failures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(map[string]any)
		gwStatus   int
		gwBody     string
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "malformed phone",
			mutate:     func(b map[string]any) { b["phoneNumber"] = "12345" },
			wantStatus: http.StatusBadRequest,
			wantCalls:  0,
		},
		{
			name:       "unsupported channel",
			mutate:     func(b map[string]any) { b["channelCode"] = 7 },
			wantStatus: http.StatusBadRequest,
			wantCalls:  0,
		},
		{
			name:       "gateway declined",
			gwStatus:   http.StatusOK,
			gwBody:     `{"status":false,"message":"Insufficient funds"}`,
			wantStatus: http.StatusPaymentRequired,
			wantCalls:  1,
		},
		{
			name:       "gateway malformed response",
			gwStatus:   http.StatusOK,
			gwBody:     `not json`,
			wantStatus: http.StatusBadGateway,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			candidateID := testutil.CreateTestCandidate(t, env.db, "Alice")
			if tt.gwBody != "" {
				env.gateway.Respond(tt.gwStatus, tt.gwBody)
			}

			body := paymentBody(candidateID)
			if tt.mutate != nil {
				tt.mutate(body)
			}
			w := httptest.NewRecorder()
			env.handler.ProcessPayment(w, testutil.MakeRequest("POST", "/api/payments", body, nil))

			testutil.AssertStatus(t, w, tt.wantStatus)

			var res models.PaymentResult
			testutil.AssertJSON(t, w, &res)
			if res.Status {
				t.Error("Expected status false")
			}
			if n := len(env.gateway.Calls()); n != tt.wantCalls {
				t.Errorf("Expected %d gateway calls, got %d", tt.wantCalls, n)
			}

			env.drain(t)
			if votes := testutil.CandidateVotes(t, env.db, candidateID); votes != 0 {
				t.Errorf("Expected no votes on failure, got %d", votes)
			}
		})
	}
}

func TestProcessPayment_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/payments", nil)
	w := httptest.NewRecorder()
	env.handler.ProcessPayment(w, req)

	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestGetPayment(t *testing.T) {
	env := newTestEnv(t)
	candidateID := testutil.CreateTestCandidate(t, env.db, "Alice")

	body := paymentBody(candidateID)
	body["idempotencyKey"] = "poll-me"
	env.handler.ProcessPayment(httptest.NewRecorder(), testutil.MakeRequest("POST", "/api/payments", body, nil))

	t.Run("found", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/api/payments/poll-me", nil, nil)
		req.SetPathValue("key", "poll-me")
		w := httptest.NewRecorder()
		env.handler.GetPayment(w, req)

		testutil.AssertStatus(t, w, http.StatusOK)

		var rec map[string]any
		testutil.AssertJSON(t, w, &rec)
		if rec["status"] != models.StatusProcessing {
			t.Errorf("Expected processing, got %v", rec["status"])
		}
		if _, ok := rec["phone_number"]; ok {
			t.Error("Phone number must not be exposed")
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := testutil.MakeRequest("GET", "/api/payments/missing", nil, nil)
		req.SetPathValue("key", "missing")
		w := httptest.NewRecorder()
		env.handler.GetPayment(w, req)

		testutil.AssertStatus(t, w, http.StatusNotFound)
	})
}

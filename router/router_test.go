// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-vote/cache"
	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/gateway"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/payment"
	"github.com/danielhkuo/quickly-vote/ratelimit"
	"github.com/danielhkuo/quickly-vote/store"
	"github.com/danielhkuo/quickly-vote/testutil"
)

func newTestRouter(t *testing.T, db *sql.DB, cfg cliparse.Config) *http.ServeMux {
	t.Helper()

	gw := testutil.NewFakeGateway(t)
	payments := store.NewPayments(db)
	queue := ledger.NewQueue(ledger.New(db), ledger.QueueConfig{Workers: 1})
	t.Cleanup(func() { queue.Close(context.Background()) })

	limiter := func(name string, lc cliparse.LimitConfig) *ratelimit.Limiter {
		l := ratelimit.New(ratelimit.Config{
			Name:           name,
			Limit:          lc.Limit,
			Window:         lc.Window,
			BurstLimit:     lc.BurstLimit,
			BurstExtension: lc.BurstExtension,
		})
		t.Cleanup(l.Close)
		return l
	}
	decisions := cache.NewMemory(0)
	t.Cleanup(func() { decisions.Close() })

	return NewRouter(db, cfg, Deps{
		Processor: payment.New(gateway.NewClient(gw.URL, time.Second), payments, queue, payment.Config{
			PricePerVote: cfg.PricePerVote,
			MinAmount:    cfg.MinAmount,
		}),
		Payments:    payments,
		Credits:     queue,
		APILimiter:  limiter("api", cfg.APILimit),
		VoteLimiter: limiter("vote", cfg.VoteLimit),
		Decisions:   decisions,
	})
}

func TestHealthEndpoint(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestRouter(t, db, testutil.GetTestConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", w.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestRouter(t, db, testutil.GetTestConfig())

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	expected := "quickly-vote API v1"
	if w.Body.String() != expected {
		t.Errorf("Expected body '%s', got '%s'", expected, w.Body.String())
	}

	// Unknown paths are not swallowed by the root route
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", w.Code)
	}
}

func TestRouteExistence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestRouter(t, db, testutil.GetTestConfig())

	// A route exists if it does not answer 405; 400/401/404 come from the handler
	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/"},
		{"POST", "/api/payments"},
		{"GET", "/api/payments/some-key"},
		{"POST", "/api/payments/callback"},
		{"GET", "/api/candidates"},
		{"GET", "/api/candidates/some-id"},
		{"POST", "/api/admin/candidates"},
		{"GET", "/api/admin/tallies"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("Route %s %s returned 405, expected route handler to exist", tc.method, tc.path)
			}
		})
	}
}

func TestSpecificMethodRouting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestRouter(t, db, testutil.GetTestConfig())

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"POST to health endpoint", "POST", "/health", http.StatusMethodNotAllowed},
		{"DELETE a payment", "DELETE", "/api/payments/some-key", http.StatusMethodNotAllowed},
		{"PUT to candidates", "PUT", "/api/candidates", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Expected %d for %s %s, got %d", tc.expectedStatus, tc.method, tc.path, w.Code)
			}
		})
	}
}

func TestPaymentRouteRateLimited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	cfg.VoteLimit = cliparse.LimitConfig{Limit: 2, Window: time.Minute, BurstLimit: 1, BurstExtension: time.Second}
	mux := newTestRouter(t, db, cfg)

	candidateID := testutil.CreateTestCandidate(t, db, "Alice")
	body := map[string]any{
		"amount":      20,
		"candidateId": candidateID,
		"phoneNumber": "0712345678",
		"channelCode": models.ChannelMpesa,
		"authCode":    "auth-123",
	}

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.MakeRequest("POST", "/api/payments", body, nil))
		testutil.AssertStatus(t, w, http.StatusOK)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.MakeRequest("POST", "/api/payments", body, nil))
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// The general limiter is separate
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.MakeRequest("GET", "/api/candidates", nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestEndToEndPaymentCreditsVotes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	mux := newTestRouter(t, db, cfg)

	candidateID := testutil.CreateTestCandidate(t, db, "Alice")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.MakeRequest("POST", "/api/payments", map[string]any{
		"amount":         250,
		"candidateId":    candidateID,
		"phoneNumber":    "+254712345678",
		"channelCode":    models.ChannelAirtel,
		"authCode":       "auth-123",
		"idempotencyKey": "e2e-1",
	}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.MakeRequest("GET", "/api/payments/e2e-1", nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var rec models.PaymentRecord
	testutil.AssertJSON(t, w, &rec)
	if rec.PaymentMethod != models.MethodAirtel {
		t.Errorf("Expected airtel-money, got %s", rec.PaymentMethod)
	}

	// Poll until the async credit lands
	deadline := time.Now().Add(2 * time.Second)
	for testutil.CandidateVotes(t, db, candidateID) != 25 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 25 votes, got %d", testutil.CandidateVotes(t, db, candidateID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/db"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SetupTestDB opens a fresh in-memory SQLite database with the full schema.
// It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(context.Background(), db.TypeSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	limits := cliparse.LimitConfig{
		Limit:          1000,
		Window:         time.Minute,
		BurstLimit:     100,
		BurstExtension: 10 * time.Second,
	}
	return cliparse.Config{
		Port:           3318,
		DatabaseURL:    ":memory:",
		DatabaseType:   db.TypeSQLite,
		AdminKey:       "test-admin-key",
		GatewayURL:     "http://gateway.invalid/pay",
		GatewayTimeout: 2 * time.Second,
		StoreTimeout:   time.Second,
		PricePerVote:   decimal.NewFromInt(10),
		MinAmount:      decimal.NewFromInt(1),
		APILimit:       limits,
		VoteLimit:      limits,
		DecisionTTL:    500 * time.Millisecond,
		CreditWorkers:  2,
		LogLevel:       "error",
		LogFormat:      "text",
	}
}

// CreateTestCandidate inserts a candidate and returns its ID
func CreateTestCandidate(t *testing.T, conn *sql.DB, name string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO candidate (id, name, category, description, image_url, votes, created_at)
		VALUES ($1, $2, 'Test', 'A test candidate', '', 0, $3)
	`, id, name, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}

	return id
}

// CandidateVotes reads a candidate's vote counter
func CandidateVotes(t *testing.T, conn *sql.DB, id string) int64 {
	t.Helper()

	var votes int64
	if err := conn.QueryRow(`SELECT votes FROM candidate WHERE id = $1`, id).Scan(&votes); err != nil {
		t.Fatalf("Failed to read votes: %v", err)
	}
	return votes
}

// GatewayCall is one request received by a FakeGateway.
type GatewayCall struct {
	Header http.Header
	Body   map[string]any
}

// FakeGateway is an httptest server standing in for the payment gateway.
type FakeGateway struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []GatewayCall
	status int
	body   string
	delay  time.Duration
}

// NewFakeGateway starts a gateway that accepts every charge. The first
// charge gets transaction id TX-TEST, later ones TX-TEST-2, TX-TEST-3 and so on.
func NewFakeGateway(t *testing.T) *FakeGateway {
	t.Helper()

	g := &FakeGateway{status: http.StatusOK}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

// Respond sets the status code and body for subsequent calls.
func (g *FakeGateway) Respond(status int, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
	g.body = body
}

// Delay makes subsequent calls wait before responding.
func (g *FakeGateway) Delay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

// Calls returns the requests received so far.
func (g *FakeGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GatewayCall(nil), g.calls...)
}

func (g *FakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)

	g.mu.Lock()
	g.calls = append(g.calls, GatewayCall{Header: r.Header.Clone(), Body: body})
	status, resp, delay := g.status, g.body, g.delay
	if resp == "" {
		resp = acceptedBody(len(g.calls))
	}
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(resp))
}

func acceptedBody(n int) string {
	txID := "TX-TEST"
	if n > 1 {
		txID = fmt.Sprintf("TX-TEST-%d", n)
	}
	return fmt.Sprintf(`{"status":true,"message":"Payment initiated","data":{"transactionId":%q,"checkoutUrl":"https://pay.test/%s"}}`, txID, txID)
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

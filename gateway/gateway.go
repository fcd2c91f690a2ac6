// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

var (
	// ErrUnreachable covers transport faults: timeouts, refused
	// connections, unreadable bodies and an open circuit breaker.
	ErrUnreachable = errors.New("payment gateway unreachable")
	// ErrDeclined is a failure reported by the gateway itself.
	ErrDeclined = errors.New("payment declined by gateway")
)

// ChargeRequest is the body sent to the gateway.
type ChargeRequest struct {
	PhoneNumber    string          `json:"phoneNumber"`
	Amount         decimal.Decimal `json:"amount"`
	CandidateID    string          `json:"candidateId"`
	ChannelCode    int             `json:"channelCode"`
	PaymentMethod  string          `json:"paymentMethod"`
	AuthCode       string          `json:"authCode"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ShowNumber     bool            `json:"showNumber"`
	FirstName      string          `json:"firstName,omitempty"`
	SecondName     string          `json:"secondName,omitempty"`
}

// ChargeResponse is the gateway's reply.
type ChargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transactionId"`
		CheckoutURL   string `json:"checkoutUrl"`
	} `json:"data"`
}

// DeclinedError carries the gateway's message verbatim.
type DeclinedError struct {
	StatusCode int
	Message    string
}

func (e *DeclinedError) Error() string { return e.Message }

func (e *DeclinedError) Unwrap() error { return ErrDeclined }

// UnreachableError wraps a transport fault.
type UnreachableError struct {
	Timeout bool
	Err     error
}

func (e *UnreachableError) Error() string {
	return "payment gateway unreachable: " + e.Err.Error()
}

func (e *UnreachableError) Unwrap() []error { return []error{ErrUnreachable, e.Err} }

// Client calls the external payment gateway.
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a gateway client. timeout bounds each call end to end.
func NewClient(url string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Declines mean the gateway is up.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnreachable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Charge issues one payment call. The idempotency key travels in the
// Idempotency-Key header and in the body, so a retried call with the same
// key is not a new charge. Errors are *DeclinedError or *UnreachableError.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ChargeResponse{}, &UnreachableError{Err: err}
		}
		return ChargeResponse{}, err
	}
	return out.(ChargeResponse), nil
}

func (c *Client) do(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("failed to create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AuthCode)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResponse{}, &UnreachableError{Timeout: isTimeout(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChargeResponse{}, &UnreachableError{Timeout: isTimeout(ctx, err), Err: err}
	}

	var out ChargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ChargeResponse{}, &UnreachableError{
			Err: fmt.Errorf("malformed response body (HTTP %d): %w", resp.StatusCode, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Status {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return out, &DeclinedError{StatusCode: resp.StatusCode, Message: msg}
	}

	return out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

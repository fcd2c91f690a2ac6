package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Payment status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a payment status can no longer change.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// StatusRank orders statuses along the only direction a payment may move:
// pending, then processing, then a terminal status.
func StatusRank(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// Gateway channel codes
const (
	ChannelMpesa  = 63902
	ChannelAirtel = 63903
	ChannelCard   = 55
)

// Payment method constants
const (
	MethodMpesa  = "mpesa"
	MethodAirtel = "airtel-money"
	MethodCard   = "card"
)

var channelMethods = map[int]string{
	ChannelMpesa:  MethodMpesa,
	ChannelAirtel: MethodAirtel,
	ChannelCard:   MethodCard,
}

// MethodForChannel maps a gateway channel code to its payment method.
func MethodForChannel(code int) (string, bool) {
	m, ok := channelMethods[code]
	return m, ok
}

// IsKnownMethod reports whether m is one of the payment method constants.
func IsKnownMethod(m string) bool {
	for _, known := range channelMethods {
		if known == m {
			return true
		}
	}
	return false
}

// CandidateID accepts either a JSON string or a positive JSON integer.
type CandidateID string

func (c *CandidateID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = CandidateID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || n <= 0 {
		return errors.New("candidateId must be a string or positive integer")
	}
	*c = CandidateID(strconv.FormatInt(n, 10))
	return nil
}

func (c CandidateID) String() string { return string(c) }

// Request types

// PaymentRequest is the inbound pay-to-vote request.
type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	CandidateID    CandidateID     `json:"candidateId"`
	PhoneNumber    string          `json:"phoneNumber"`
	ChannelCode    int             `json:"channelCode"`
	AuthCode       string          `json:"authCode"`
	FirstName      string          `json:"firstName,omitempty"`
	SecondName     string          `json:"secondName,omitempty"`
	ShowNames      bool            `json:"showNames"`
	ShowNumber     *bool           `json:"showNumber,omitempty"` // nil means true
	PaymentMethod  string          `json:"paymentMethod,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// WantsNumberShown applies the showNumber default.
func (r PaymentRequest) WantsNumberShown() bool {
	return r.ShowNumber == nil || *r.ShowNumber
}

type CreateCandidateRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// CallbackRequest is the gateway's out-of-band confirmation.
type CallbackRequest struct {
	TransactionID  string `json:"transactionId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

// Response types

type PaymentData struct {
	TransactionID  string `json:"transactionId"`
	CheckoutURL    string `json:"checkoutUrl"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// PaymentResult is returned for every payment request, success or not.
type PaymentResult struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Data    *PaymentData      `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type CreateCandidateResponse struct {
	CandidateID string `json:"candidate_id"`
}

type CandidateTally struct {
	Candidate
	VotesDisplay string `json:"votes_display"`
}

type TalliesResponse struct {
	Candidates       []CandidateTally `json:"candidates"`
	TotalVotes       int64            `json:"total_votes"`
	PaymentsByStatus map[string]int64 `json:"payments_by_status"`
}

// Domain types

// PaymentRecord is the durable row keyed by idempotency key.
type PaymentRecord struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Amount         decimal.Decimal `json:"amount"`
	CandidateID    string          `json:"candidate_id"`
	ChannelCode    int             `json:"channel_code"`
	PhoneNumber    string          `json:"-"` // Never expose in JSON
	PaymentMethod  string          `json:"payment_method"`
	FirstName      string          `json:"-"`
	SecondName     string          `json:"-"`
	ShowNames      bool            `json:"show_names"`
	ShowNumber     bool            `json:"show_number"`
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	TransactionID  *string         `json:"transaction_id,omitempty"`
	CheckoutURL    *string         `json:"checkout_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Candidate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Votes       int64     `json:"votes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

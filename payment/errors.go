// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package payment

import (
	"errors"
	"net/http"
)

// Kind classifies a payment failure for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindRateLimited
	KindGatewayDeclined
	KindGatewayUnreachable
	KindGatewayTimeout
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindGatewayDeclined:
		return "gateway_declined"
	case KindGatewayUnreachable:
		return "gateway_unreachable"
	case KindGatewayTimeout:
		return "gateway_timeout"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Error is returned by Process alongside a populated PaymentResult.
// Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the response status code. nil maps to 200.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindGatewayDeclined:
		return http.StatusPaymentRequired
	case KindGatewayUnreachable:
		return http.StatusBadGateway
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Quickly Vote API.

# Handler Types

Each handler is a struct holding its dependencies and the config:

  - PaymentHandler: Pay for votes and poll payment status
  - CallbackHandler: Gateway completion callbacks
  - CandidateHandler: Public candidate standings
  - AdminHandler: Candidate management and tallies

Handlers are created via constructor functions:

	paymentHandler := handlers.NewPaymentHandler(orchestrator, payments, cfg)
	callbackHandler := handlers.NewCallbackHandler(payments, credits, cfg)

# Payment Flow

	POST /api/payments           → ProcessPayment (charge, record, credit votes)
	GET  /api/payments/{key}     → GetPayment (status by idempotency key)
	POST /api/payments/callback  → Callback (gateway settles the payment)

ProcessPayment delegates to a PaymentProcessor and maps its error kind to
an HTTP status with payment.HTTPStatus. The idempotency key may be sent in
the body or in the Idempotency-Key header and is echoed back in both.

Callbacks are verified with HMAC-SHA256 over the raw body when
CALLBACK_SECRET is set. A completed callback dispatches a vote credit;
the ledger applies each payment's credit at most once, so a payment that
was already credited at initiation is not counted twice.

# Candidates

	GET /api/candidates[?category=] → ListCandidates (most votes first)
	GET /api/candidates/{id}        → GetCandidate

Admin operations require the X-Admin-Key header:

	POST /api/admin/candidates → CreateCandidate
	GET  /api/admin/tallies    → Tallies
*/
package handlers

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package payment orchestrates a pay-to-vote request from validation to
vote crediting.

# Processing

Orchestrator.Process runs each request through the same steps:

 1. Validate the fields and resolve the payment method from the channel
 2. Normalize the phone number to 2547XXXXXXXX
 3. Take the client's idempotency key or mint a UUID
 4. Replay a payment already processing or completed under that key
 5. Record the payment as pending
 6. Charge through the gateway
 7. Record the outcome and dispatch a vote credit on success

	res, err := orch.Process(ctx, req)
	w.WriteHeader(payment.HTTPStatus(err))

The result is always a PaymentResult suitable for the response body, even
when err is non-nil.

# Errors

Failures are *Error values carrying a Kind:

	KindValidation          → 400, per-field messages in Fields
	KindRateLimited         → 429
	KindGatewayDeclined     → 402
	KindGatewayUnreachable  → 502
	KindGatewayTimeout      → 504
	KindPersistence, KindInternal → 500

Persistence faults never fail a request the gateway accepted: they are
logged and the voter still gets their result. A panic anywhere in the
pipeline is recovered into KindInternal; details are only included when
DevMode is set.

# Cancellation

The gateway call and record writes are detached from the caller's context
and bounded by GatewayTimeout and StoreTimeout instead. A client that
disconnects mid-charge cannot leave a charged payment unrecorded.

# Votes

One vote per PricePerVote, rounded down, with a minimum of one:

	amount 100, price 10 → 10 votes
	amount 25,  price 10 → 2 votes
	amount 5,   price 10 → 1 vote
*/
package payment

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - PaymentRequest: amount, candidateId, phoneNumber, channelCode, authCode,
    optional names, showNumber, paymentMethod, idempotencyKey
  - CallbackRequest: transactionId or idempotencyKey, status, message
  - CreateCandidateRequest: name, category, description, image_url

CandidateID accepts a JSON string or a positive integer, since clients send
either.

# Response Types

Types for JSON responses:

  - PaymentResult: status, message, data, errors (per-field)
  - PaymentData: transactionId, checkoutUrl, idempotencyKey
  - CreateCandidateResponse: candidate_id
  - CandidateTally: candidate plus votes_display
  - TalliesResponse: candidates, total_votes, payments_by_status
  - ErrorResponse: error, message

# Domain Types

  - PaymentRecord: durable payment row keyed by idempotency key
  - Candidate: vote recipient with running total

# Constants

Status values:

	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

Completed and failed are terminal (see IsTerminal).

Gateway channels and their payment methods:

	ChannelMpesa  = 63902 → MethodMpesa  = "mpesa"
	ChannelAirtel = 63903 → MethodAirtel = "airtel-money"
	ChannelCard   = 55    → MethodCard   = "card"

Amounts are shopspring/decimal values and marshal as JSON numbers.
*/
package models
